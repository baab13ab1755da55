package env

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"vessel.services/vessel/core"
	"vessel.services/vessel/exec"
	"vessel.services/vessel/lib"
)

// process is the driver that owns the lifecycle of one backing
// computation: it resumes the executor cooperatively, drains pending
// signals before every resume, and turns termination into link/monitor
// propagation. It implements both core.Process (the sharable handle) and
// exec.Host (the host-call surface of the running executor).
type process struct {
	env *Environment
	pid core.PID

	name      string
	sbehavior string

	executor exec.Executor
	mailbox  *core.Mailbox

	state    int32
	trapExit int32

	// receive wait state. Driver-owned: touched only while Running or
	// during park, never concurrently.
	waitActive   bool
	waitDeadline time.Time
	waitTimer    *time.Timer
	timedOut     int32

	// killed is set by the driver once a pending Kill (or fatal exit
	// propagation) has been observed. Driver-owned.
	killed bool

	reductions uint64

	// terminal reason and cause, guarded for concurrent Info readers.
	reason    error
	cause     *core.Exit
	mutexTerm sync.Mutex
}

func (p *process) State() core.ProcessState {
	return core.ProcessState(atomic.LoadInt32(&p.state))
}

func (p *process) setState(s core.ProcessState) {
	atomic.StoreInt32(&p.state, int32(s))
}

func (p *process) casState(from, to core.ProcessState) bool {
	return atomic.CompareAndSwapInt32(&p.state, int32(from), int32(to))
}

//
// core.Process implementation
//

func (p *process) PID() core.PID {
	return p.pid
}

func (p *process) Deliver(m *core.Message) error {
	if p.State() == core.ProcessStateTerminated {
		return core.ErrProcessTerminated
	}
	if err := p.mailbox.Push(m); err != nil {
		return err
	}
	p.env.metrics.messageSent()
	return nil
}

func (p *process) Kill() error {
	return p.env.kill(p, core.PID{})
}

func (p *process) TrapExit() bool {
	return atomic.LoadInt32(&p.trapExit) == 1
}

func (p *process) Info() core.ProcessInfo {
	p.mutexTerm.Lock()
	reason := p.reason
	cause := p.cause
	p.mutexTerm.Unlock()

	return core.ProcessInfo{
		PID:        p.pid,
		Name:       p.name,
		State:      p.State(),
		Behavior:   p.sbehavior,
		MailboxLen: p.mailbox.Len(),
		SignalsLen: p.mailbox.SignalsLen(),
		Links:      p.env.links.linksOf(p.pid),
		Monitors:   p.env.links.monitorsOf(p.pid),
		TrapExit:   p.TrapExit(),
		Reason:     reason,
		Cause:      cause,
	}
}

//
// driver
//

// run executes one quantum of the process on the calling worker.
func (p *process) run() {
	if !p.casState(core.ProcessStateRunnable, core.ProcessStateRunning) {
		return
	}

	if p.drainSignals() {
		p.terminate(core.ReasonKilled)
		return
	}

	out := p.resume()

	switch out.Kind {
	case exec.OutcomeFinished:
		p.terminate(core.ReasonNormal)
		return
	case exec.OutcomeTrapped:
		if p.killed {
			p.terminate(core.ReasonKilled)
			return
		}
		p.terminate(out.Err)
		return
	}

	if p.killed {
		p.terminate(core.ReasonKilled)
		return
	}

	switch out.Yield {
	case exec.YieldMailbox:
		p.park(out.Deadline)
	default:
		// YieldHandoff / YieldQuota: execution state is preserved, go to
		// the back of the run queue.
		p.setState(core.ProcessStateRunnable)
		p.env.scheduler.enqueue(p)
	}
}

func (p *process) resume() (out exec.Outcome) {
	if lib.Recover() {
		defer func() {
			if r := recover(); r != nil {
				pc, fn, line, _ := runtime.Caller(2)
				lib.Warning("process %s panicked: %#v at %s[%s:%d]",
					p.pid, r, runtime.FuncForPC(pc).Name(), fn, line)
				out = exec.Trap(fmt.Errorf("%w: %v", core.ReasonPanic, r))
			}
		}()
	}
	return p.executor.Resume(p)
}

// park suspends the driver until the mailbox wakes it or the receive
// deadline fires. The state store publishes the driver to concurrent
// wakers, so nothing driver-owned may be touched after it; the re-check
// below closes the window where a push happened between the failed
// receive and the arming of the waker.
func (p *process) park(deadline time.Time) {
	if deadline.IsZero() {
		// the receive that came up empty already armed the deadline
		deadline = p.waitDeadline
	}
	if !deadline.IsZero() && p.waitTimer == nil {
		p.waitTimer = time.AfterFunc(time.Until(deadline), func() {
			atomic.StoreInt32(&p.timedOut, 1)
			p.env.scheduler.runnable(p)
		})
	}
	p.mailbox.WakeOnPush()
	p.setState(core.ProcessStateWaiting)

	if p.mailbox.Pending() || atomic.LoadInt32(&p.timedOut) == 1 {
		p.env.scheduler.runnable(p)
	}
}

// drainSignals consumes every pending signal. Returns true if the
// process must terminate: a Kill, or abnormal exit propagation it does
// not trap. Trapped exits are translated here into ordinary mailbox
// messages; the trap flag is owner-local so the translation cannot race
// with the sender.
func (p *process) drainSignals() bool {
	if p.killed {
		return true
	}
	for {
		s, ok := p.mailbox.PopSignal()
		if !ok {
			return false
		}
		switch s.Kind() {
		case core.SignalKill:
			p.killed = true
			p.setCause(s.From(), core.ReasonKilled)
			return true

		case core.SignalExit:
			from, reason := s.From(), s.Reason()
			if p.TrapExit() {
				// limit-exempt: the translated exit must not be lost to
				// a full mailbox
				p.mailbox.PushNotify(core.ExitMessage(from, reason))
				continue
			}
			if errors.Is(reason, core.ReasonNormal) {
				continue
			}
			p.killed = true
			p.setCause(from, reason)
			return true

		case core.SignalLink, core.SignalUnlink:
			// adjacency is owned by the link graph; the signal only
			// wakes the process so a pending receive observes the change
		}
	}
}

func (p *process) setCause(from core.PID, reason error) {
	p.mutexTerm.Lock()
	if p.cause == nil {
		p.cause = &core.Exit{From: from, Reason: reason}
	}
	p.mutexTerm.Unlock()
}

// terminate moves the process to its absorbing state and performs, in
// order: executor cleanup, link/monitor propagation, mailbox and
// resource disposal, identity release. The state store comes first so
// resolve deterministically reports absence before any observer is
// notified.
func (p *process) terminate(reason error) {
	p.setState(core.ProcessStateTerminated)
	if p.killed && !errors.Is(reason, core.ReasonKilled) {
		reason = core.ReasonKilled
	}

	p.mutexTerm.Lock()
	p.reason = reason
	p.mutexTerm.Unlock()

	lib.Trace("[%s] PROCESS %s terminated: %s", p.env.id, p.pid, reason)
	p.clearWait()

	if p.executor != nil {
		p.terminateExecutor(reason)
		p.executor = nil
	}

	p.env.links.terminated(p.pid, reason)
	p.mailbox.Dispose()
	p.env.release(p, reason)
}

func (p *process) terminateExecutor(reason error) {
	if lib.Recover() {
		defer func() {
			if r := recover(); r != nil {
				lib.Warning("process %s panicked in Terminate: %#v", p.pid, r)
			}
		}()
	}
	p.executor.Terminate(reason)
}

// wake is installed as the mailbox waker.
func (p *process) wake() {
	p.env.scheduler.runnable(p)
}

func (p *process) clearWait() {
	p.waitActive = false
	p.waitDeadline = time.Time{}
	if p.waitTimer != nil {
		p.waitTimer.Stop()
		p.waitTimer = nil
	}
}

//
// exec.Host implementation. Valid only on the worker that resumed the
// executor.
//

func (p *process) Self() core.PID {
	return p.pid
}

func (p *process) Receive(f core.Filter, timeout time.Duration) (*core.Message, error) {
	if p.drainSignals() {
		p.clearWait()
		return nil, core.ErrKilled
	}

	if !p.waitActive {
		p.waitActive = true
		atomic.StoreInt32(&p.timedOut, 0)
		p.waitDeadline = time.Time{}
		if timeout > 0 {
			p.waitDeadline = time.Now().Add(timeout)
		}
	}

	if m, ok := p.mailbox.ReceiveMatch(f); ok {
		// a Kill pending at the same tick wins over a found match
		if p.drainSignals() {
			p.mailbox.Requeue(m)
			p.clearWait()
			return nil, core.ErrKilled
		}
		atomic.AddUint64(&p.reductions, 1)
		p.clearWait()
		return m, nil
	}

	if !p.waitDeadline.IsZero() &&
		(atomic.LoadInt32(&p.timedOut) == 1 || !time.Now().Before(p.waitDeadline)) {
		p.clearWait()
		return nil, core.ErrTimeout
	}
	return nil, core.ErrWouldBlock
}

func (p *process) Send(to core.PID, m *core.Message) error {
	m.From = p.pid
	return p.env.route(to, m)
}

func (p *process) Spawn(child exec.Executor, opts core.SpawnOptions) (core.PID, error) {
	return p.env.spawn(child, opts, p.pid)
}

func (p *process) Resolve(pid core.PID) (core.Process, error) {
	return p.env.Resolve(pid)
}

func (p *process) Whereis(name string) (core.PID, error) {
	return p.env.registry.whereis(name)
}

func (p *process) RegisterName(name string, pid core.PID) error {
	return p.env.registry.registerName(name, pid)
}

func (p *process) Link(peer core.PID) error {
	return p.env.links.link(p.pid, peer)
}

func (p *process) Unlink(peer core.PID) error {
	return p.env.links.unlink(p.pid, peer)
}

func (p *process) Monitor(target core.PID) error {
	return p.env.links.monitor(p.pid, target)
}

func (p *process) Demonitor(target core.PID) error {
	return p.env.links.demonitor(p.pid, target)
}

func (p *process) SetTrapExit(trap bool) {
	if trap {
		atomic.StoreInt32(&p.trapExit, 1)
		return
	}
	atomic.StoreInt32(&p.trapExit, 0)
}

func (p *process) SendAfter(to core.PID, m *core.Message, after time.Duration) context.CancelFunc {
	from := p.pid
	e := p.env
	timer := time.AfterFunc(after, func() {
		m.From = from
		e.route(to, m)
	})
	return func() { timer.Stop() }
}
