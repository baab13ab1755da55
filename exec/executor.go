// Package exec defines the boundary between the process core and the
// engines that actually run guest code. The core is agnostic to how
// instructions execute: it resumes an Executor and the Executor yields
// back on blocking host calls, finishes, or traps.
package exec

import (
	"context"
	"time"

	"vessel.services/vessel/core"
)

// OutcomeKind is the result class of one resume quantum.
type OutcomeKind int32

const (
	// OutcomeYielded: the executor gave the worker back and preserved
	// its execution state for the next resume.
	OutcomeYielded OutcomeKind = 1
	// OutcomeFinished: the guest program returned normally.
	OutcomeFinished OutcomeKind = 2
	// OutcomeTrapped: the guest program faulted; treated exactly like an
	// abnormal process termination for link/monitor propagation.
	OutcomeTrapped OutcomeKind = 3
)

// YieldReason says why a resumed executor gave the worker back.
type YieldReason int32

const (
	// YieldMailbox: a receive found no matching message; resume when the
	// mailbox wakes the process or the deadline fires.
	YieldMailbox YieldReason = 1
	// YieldHandoff: voluntary cooperative yield.
	YieldHandoff YieldReason = 2
	// YieldQuota: the execution quota for this quantum is exhausted.
	YieldQuota YieldReason = 3
)

// Outcome is the value an Executor returns from Resume.
type Outcome struct {
	Kind  OutcomeKind
	Yield YieldReason

	// Deadline bounds a YieldMailbox wait. Zero means wait indefinitely.
	Deadline time.Time

	// Err carries the trap reason for OutcomeTrapped.
	Err error
}

// WaitMailbox yields until the mailbox wakes the process. A non-zero
// deadline arms a timeout.
func WaitMailbox(deadline time.Time) Outcome {
	return Outcome{Kind: OutcomeYielded, Yield: YieldMailbox, Deadline: deadline}
}

// Yield hands the worker back voluntarily; the process stays runnable.
func Yield() Outcome {
	return Outcome{Kind: OutcomeYielded, Yield: YieldHandoff}
}

// QuotaExhausted reports a preemption point; the process stays runnable.
func QuotaExhausted() Outcome {
	return Outcome{Kind: OutcomeYielded, Yield: YieldQuota}
}

// Finish reports normal guest completion.
func Finish() Outcome {
	return Outcome{Kind: OutcomeFinished}
}

// Trap reports abnormal guest termination with the given reason.
func Trap(err error) Outcome {
	return Outcome{Kind: OutcomeTrapped, Err: err}
}

// Executor is one process's backing computation. Resume runs one
// cooperative quantum on the calling worker; all host effects go through
// the provided Host. Terminate is invoked exactly once after the process
// reached its terminal state.
type Executor interface {
	Resume(host Host) Outcome
	Terminate(reason error)
}

// Host is the host-call surface a resumed executor may call back into.
// Valid only within Resume, on the worker that invoked it.
type Host interface {
	// Self returns the identifier of the running process.
	Self() core.PID

	// Receive scans the mailbox in arrival order for the first message
	// matching the filter (nil matches any). With no match it returns
	// core.ErrWouldBlock and arms a wait: the executor must yield with
	// WaitMailbox and retry the same receive after the next resume.
	// timeout 0 waits indefinitely. Returns core.ErrTimeout once the
	// deadline elapsed and core.ErrKilled if a Kill preempted the wait.
	Receive(filter core.Filter, timeout time.Duration) (*core.Message, error)

	// Send delivers a message to another process. Never blocks.
	Send(to core.PID, m *core.Message) error

	// SendAfter delivers the message after the given duration unless the
	// returned cancel function is called first.
	SendAfter(to core.PID, m *core.Message, after time.Duration) context.CancelFunc

	// Spawn creates a child process backed by the given executor.
	Spawn(child Executor, opts core.SpawnOptions) (core.PID, error)

	// Resolve returns a live handle for the identifier.
	Resolve(pid core.PID) (core.Process, error)

	// Whereis resolves a registered name within the environment.
	Whereis(name string) (core.PID, error)

	// RegisterName registers a name for the given process.
	RegisterName(name string, pid core.PID) error

	// Link/Unlink manage the symmetric failure-propagation relationship
	// with the peer. Both are idempotent.
	Link(peer core.PID) error
	Unlink(peer core.PID) error

	// Monitor/Demonitor manage the asymmetric termination-notification
	// relationship with the target. Both are idempotent.
	Monitor(target core.PID) error
	Demonitor(target core.PID) error

	// SetTrapExit toggles translation of exit propagation into mailbox
	// messages. Kill signals are never trapped.
	SetTrapExit(trap bool)
	TrapExit() bool
}
