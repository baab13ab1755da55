package exec

import (
	"fmt"
	"runtime"
	"time"

	"vessel.services/vessel/core"
	"vessel.services/vessel/lib"
)

// DefaultReductions is the number of mailbox messages a native process
// handles per resume quantum before the scheduler preempts it.
const DefaultReductions = 16

// Behavior is the callback set for a native (host-side) process: a
// process variant that runs Go logic but is reachable exactly like a
// sandboxed one. All callbacks execute sequentially on the process's
// driver; never spawn goroutines or block in them.
type Behavior interface {
	// Init is invoked once before the first message is handled.
	// A non-nil error terminates the process with that reason.
	Init(host Host, args ...any) error

	// HandleMessage is invoked per mailbox message. Return nil to keep
	// running, core.ReasonNormal to stop normally, or any other error
	// for abnormal termination.
	HandleMessage(from core.PID, m *core.Message) error

	// HandleExit is invoked for trapped exit notifications
	// (core.TagExit messages).
	HandleExit(from core.PID, reason error) error

	// HandleDown is invoked for monitor notifications (core.TagDown
	// messages).
	HandleDown(from core.PID, reason error) error

	// Terminate is invoked once after the process terminated.
	Terminate(reason error)
}

// Act provides default no-op callbacks so a Behavior implementation can
// embed it and override only what it needs.
type Act struct{}

func (a *Act) Init(host Host, args ...any) error { return nil }

func (a *Act) HandleMessage(from core.PID, m *core.Message) error {
	lib.Warning("Act.HandleMessage: unhandled message from %s", from)
	return nil
}

func (a *Act) HandleExit(from core.PID, reason error) error {
	return fmt.Errorf("%s: %w", from, reason)
}

func (a *Act) HandleDown(from core.PID, reason error) error {
	lib.Warning("Act.HandleDown: unhandled down message from %s", from)
	return nil
}

func (a *Act) Terminate(reason error) {}

// NewNative wraps a Behavior into an Executor driven by the process
// core: each resume pulls mailbox messages until the reduction budget is
// spent or the mailbox runs dry.
func NewNative(behavior Behavior, args ...any) Executor {
	return NewNativeReductions(behavior, DefaultReductions, args...)
}

// NewNativeReductions is NewNative with an explicit reduction budget.
func NewNativeReductions(behavior Behavior, reductions int, args ...any) Executor {
	if reductions < 1 {
		reductions = DefaultReductions
	}
	return &native{
		behavior:   behavior,
		args:       args,
		reductions: reductions,
	}
}

type native struct {
	behavior    Behavior
	args        []any
	reductions  int
	initialized bool
}

func (n *native) Resume(host Host) (out Outcome) {
	if lib.Recover() {
		defer func() {
			if r := recover(); r != nil {
				pc, fn, line, _ := runtime.Caller(2)
				lib.Warning("native process %s panicked: %#v at %s[%s:%d]",
					host.Self(), r, runtime.FuncForPC(pc).Name(), fn, line)
				out = Trap(fmt.Errorf("%w: %v", core.ReasonPanic, r))
			}
		}()
	}

	if n.initialized == false {
		if err := n.behavior.Init(host, n.args...); err != nil {
			return n.stop(err)
		}
		n.initialized = true
	}

	for i := 0; i < n.reductions; i++ {
		m, err := host.Receive(nil, 0)
		switch err {
		case nil:
		case core.ErrWouldBlock:
			return WaitMailbox(time.Time{})
		case core.ErrKilled:
			return Trap(core.ReasonKilled)
		default:
			return Trap(err)
		}

		var reason error
		switch {
		case m.Exit != nil && m.Tag == core.TagDown:
			reason = n.behavior.HandleDown(m.Exit.From, m.Exit.Reason)
		case m.Exit != nil && m.Tag == core.TagExit:
			reason = n.behavior.HandleExit(m.Exit.From, m.Exit.Reason)
		default:
			reason = n.behavior.HandleMessage(m.From, m)
		}
		if reason != nil {
			return n.stop(reason)
		}
	}

	return QuotaExhausted()
}

func (n *native) stop(reason error) Outcome {
	if reason == core.ReasonNormal {
		return Finish()
	}
	return Trap(reason)
}

func (n *native) Terminate(reason error) {
	n.behavior.Terminate(reason)
}
