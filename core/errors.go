package core

import (
	"errors"
)

var (
	ErrProcessUnknown     = errors.New("unknown process")
	ErrProcessIncarnation = errors.New("process ID belongs to the previous incarnation")
	ErrProcessTerminated  = errors.New("process terminated")
	ErrProcessMailboxFull = errors.New("process mailbox is full")

	ErrEnvironmentDown  = errors.New("environment is terminated")
	ErrEnvironmentLimit = errors.New("environment process limit reached")

	ErrNameUnknown = errors.New("unknown name")
	ErrTaken       = errors.New("name is already taken")

	// ErrTimeout is returned by a receive whose deadline elapsed with no
	// matching message. Expected control flow, never fatal.
	ErrTimeout = errors.New("timed out")

	// ErrKilled is returned by a blocking operation when the calling
	// process itself has a pending Kill. The process transitions straight
	// to Terminated; the error is never "caught" and resumed.
	ErrKilled = errors.New("killed")

	// ErrResourceMoved reports reuse of a resource handle that was
	// already transferred. A local contract violation, reported
	// synchronously to the offending caller.
	ErrResourceMoved = errors.New("resource already moved")

	// ErrWouldBlock tells the executor that a receive found no matching
	// message and the process must yield; the receive has to be retried
	// with the same filter after the next resume.
	ErrWouldBlock = errors.New("would block")

	ErrNotAllowed = errors.New("not allowed")
)
