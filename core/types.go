package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PID is a process identifier, unique within the owning Environment.
// ID values are allocated monotonically and never reused within an
// environment session; Creation tags the environment incarnation so an
// identifier from a previous incarnation can never be confused with a
// live one.
type PID struct {
	Environment uuid.UUID
	ID          uint64
	Creation    uint32
}

func (p PID) String() string {
	e := p.Environment.String()
	if len(e) > 8 {
		e = e[:8]
	}
	return fmt.Sprintf("<%s.%d.%d>", e, p.Creation, p.ID)
}

func (p PID) IsZero() bool {
	return p == PID{}
}

// ProcessState is the lifecycle state of a process driver.
// Terminated is absorbing.
type ProcessState int32

const (
	ProcessStateCreated    ProcessState = 1
	ProcessStateRunnable   ProcessState = 2
	ProcessStateRunning    ProcessState = 3
	ProcessStateWaiting    ProcessState = 4
	ProcessStateTerminated ProcessState = 5
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStateCreated:
		return "created"
	case ProcessStateRunnable:
		return "runnable"
	case ProcessStateRunning:
		return "running"
	case ProcessStateWaiting:
		return "waiting"
	case ProcessStateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state#%d", int32(s))
}

// Termination reasons. Any other error value returned by an executor or
// behavior callback is treated as an abnormal (trapped) termination.
var (
	ReasonNormal   = errors.New("normal")
	ReasonKilled   = errors.New("killed")
	ReasonShutdown = errors.New("shutdown")
	ReasonPanic    = errors.New("panic")
)

// Exit describes a termination event: which process terminated and why.
// Delivered to linked processes (as a signal, or a mailbox message when
// the receiver traps exits) and to monitoring processes.
type Exit struct {
	From   PID
	Reason error
}

func (e Exit) String() string {
	return fmt.Sprintf("%s: %s", e.From, e.Reason)
}

// SpawnOptions control the creation of a new process.
type SpawnOptions struct {
	// Name registers the spawned process under the given name.
	Name string

	// MailboxSize limits the message queue length. 0 means the
	// environment default.
	MailboxSize int64

	// TrapExit makes abnormal exit propagation from linked processes
	// arrive as ordinary mailbox messages instead of killing the process.
	TrapExit bool

	// LinkParent atomically links the spawned process to its parent.
	// Has effect only for spawns made from within a process.
	LinkParent bool
}

// Process is the capability surface of a live process handle as returned
// by identifier resolution. Resolution never creates ownership: the
// underlying process may already be mid-termination, in which case
// delivery methods report ErrProcessTerminated.
type Process interface {
	// PID returns the process identifier.
	PID() PID

	// State returns the current lifecycle state.
	State() ProcessState

	// Deliver pushes a message into the process mailbox. Never blocks.
	Deliver(m *Message) error

	// Kill requests asynchronous termination. The kill is observed at
	// the next resume point of the target and cannot be trapped.
	Kill() error

	// TrapExit reports whether the process converts exit propagation
	// into mailbox messages.
	TrapExit() bool

	// Info returns a snapshot of the process details.
	Info() ProcessInfo
}

// ProcessInfo is a point-in-time snapshot of process details.
type ProcessInfo struct {
	PID        PID
	Name       string
	State      ProcessState
	Behavior   string
	MailboxLen int64
	SignalsLen int64
	Links      []PID
	Monitors   []PID
	TrapExit   bool

	// Reason and Cause are set once the process is terminated. Cause
	// carries the exit event that triggered a ReasonKilled termination.
	Reason error
	Cause  *Exit
}
