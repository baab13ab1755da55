package env

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vessel.services/vessel/core"
	"vessel.services/vessel/exec"
	"vessel.services/vessel/lib"
)

const (
	DefaultMailboxSize int64 = 0 // unbounded
	DefaultReductions        = exec.DefaultReductions
)

// Options is the spawn configuration and resource ceilings shared by
// every process of an Environment.
type Options struct {
	// Workers is the size of the scheduler worker pool.
	// Defaults to runtime.NumCPU().
	Workers int

	// MailboxSize bounds process mailboxes unless a spawn overrides it.
	// 0 means unbounded.
	MailboxSize int64

	// Reductions is the per-quantum message budget for behavior-backed
	// processes.
	Reductions int

	// MaxProcesses caps the number of simultaneously registered
	// processes. 0 means unlimited.
	MaxProcesses int64
}

// Environment is a namespace of processes sharing spawn policy and
// resource limits, and the unit of bulk teardown.
type Environment struct {
	id       uuid.UUID
	name     string
	creation uint32
	options  Options

	registry  *registry
	links     *links
	scheduler *scheduler
	metrics   *metrics

	tornDown int32
	alive    int64

	donec    chan struct{}
	doneOnce sync.Once
}

// New creates an Environment and starts its worker pool.
func New(name string, options Options) *Environment {
	if options.Reductions < 1 {
		options.Reductions = DefaultReductions
	}
	id := uuid.New()
	creation := uint32(time.Now().Unix())
	e := &Environment{
		id:        id,
		name:      name,
		creation:  creation,
		options:   options,
		registry:  newRegistry(id, creation),
		scheduler: newScheduler(options.Workers),
		donec:     make(chan struct{}),
	}
	e.links = newLinks(e.registry)
	e.metrics = newMetrics(e)
	lib.Trace("[%s] ENV %q started", id, name)
	return e
}

func (e *Environment) ID() uuid.UUID    { return e.id }
func (e *Environment) Name() string     { return e.name }
func (e *Environment) Creation() uint32 { return e.creation }

// IsAlive reports whether the environment still accepts spawns.
func (e *Environment) IsAlive() bool {
	return atomic.LoadInt32(&e.tornDown) == 0
}

// ProcessCount returns the number of live processes.
func (e *Environment) ProcessCount() int {
	return e.registry.len()
}

// Spawn creates a process backed by the given executor, registers it and
// hands it to the scheduler. It returns as soon as the process is
// Runnable; it never waits for the process to run, and the spawned
// process crashing later is observable only through links and monitors.
func (e *Environment) Spawn(executor exec.Executor, opts core.SpawnOptions) (core.PID, error) {
	return e.spawn(executor, opts, core.PID{})
}

// SpawnBehavior spawns a native process around the behavior, using the
// environment's reduction budget.
func (e *Environment) SpawnBehavior(b exec.Behavior, opts core.SpawnOptions, args ...any) (core.PID, error) {
	return e.spawn(exec.NewNativeReductions(b, e.options.Reductions, args...), opts, core.PID{})
}

func (e *Environment) spawn(executor exec.Executor, opts core.SpawnOptions, parent core.PID) (core.PID, error) {
	if executor == nil {
		return core.PID{}, core.ErrNotAllowed
	}
	if !e.IsAlive() {
		return core.PID{}, core.ErrEnvironmentDown
	}
	if e.options.MaxProcesses > 0 && int64(e.registry.len()) >= e.options.MaxProcesses {
		return core.PID{}, core.ErrEnvironmentLimit
	}

	mailboxSize := e.options.MailboxSize
	if opts.MailboxSize > 0 {
		mailboxSize = opts.MailboxSize
	}

	p := &process{
		env:       e,
		pid:       e.registry.allocate(),
		name:      opts.Name,
		sbehavior: strings.TrimPrefix(reflect.TypeOf(executor).String(), "*"),
		executor:  executor,
		mailbox:   core.NewMailbox(mailboxSize),
		state:     int32(core.ProcessStateCreated),
	}
	if opts.TrapExit {
		p.trapExit = 1
	}
	p.mailbox.SetWaker(p.wake)

	atomic.AddInt64(&e.alive, 1)
	e.registry.register(p)

	if opts.Name != "" {
		if err := e.registry.registerName(opts.Name, p.pid); err != nil {
			e.registry.release(p.pid)
			atomic.AddInt64(&e.alive, -1)
			return core.PID{}, err
		}
	}

	if opts.LinkParent && !parent.IsZero() {
		// linking manually: both edges are in place before the child
		// runs, so a crash of either side is propagated from the start.
		e.links.mutexLinks.Lock()
		e.links.addEdge(parent, p.pid)
		e.links.addEdge(p.pid, parent)
		e.links.mutexLinks.Unlock()
		e.links.sendSignal(parent, core.LinkSignal(p.pid))
	}

	lib.Trace("[%s] ENV spawn %s (%s)", e.id, p.pid, p.sbehavior)
	e.metrics.spawned()

	p.setState(core.ProcessStateRunnable)
	e.scheduler.enqueue(p)

	// a teardown may have started while this spawn was in flight; make
	// sure the new process does not escape it
	if !e.IsAlive() {
		p.mailbox.PushSignal(core.KillSignal(core.PID{}))
	}
	return p.pid, nil
}

// Resolve returns a sharable handle for the identifier. Resolving never
// creates ownership; after the process released its identity Resolve
// deterministically reports core.ErrProcessUnknown.
func (e *Environment) Resolve(pid core.PID) (core.Process, error) {
	p, err := e.registry.resolve(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Whereis resolves a registered process name.
func (e *Environment) Whereis(name string) (core.PID, error) {
	return e.registry.whereis(name)
}

// RegisterName associates a name with a live process.
func (e *Environment) RegisterName(name string, pid core.PID) error {
	return e.registry.registerName(name, pid)
}

// UnregisterName removes a name registration.
func (e *Environment) UnregisterName(name string) error {
	return e.registry.unregisterName(name)
}

// Send delivers a message to the process. From is left as set by the
// caller (zero for external senders).
func (e *Environment) Send(to core.PID, m *core.Message) error {
	return e.route(to, m)
}

// Kill requests asynchronous termination of the process.
func (e *Environment) Kill(pid core.PID) error {
	p, err := e.registry.resolve(pid)
	if err != nil {
		return err
	}
	return e.kill(p, core.PID{})
}

// Link creates the symmetric failure-propagation relationship between
// the two processes. Idempotent.
func (e *Environment) Link(a, b core.PID) error {
	return e.links.link(a, b)
}

// Unlink removes the link in both directions. Idempotent.
func (e *Environment) Unlink(a, b core.PID) error {
	return e.links.unlink(a, b)
}

// Monitor makes observer watch the target's termination. Idempotent.
func (e *Environment) Monitor(observer, target core.PID) error {
	return e.links.monitor(observer, target)
}

// Demonitor removes the monitor. Idempotent.
func (e *Environment) Demonitor(observer, target core.PID) error {
	return e.links.demonitor(observer, target)
}

// Teardown kills every currently-registered member and rejects any
// further spawn. Fire-and-forget: it does not wait for the members to
// terminate; use Wait for that.
func (e *Environment) Teardown() {
	if !atomic.CompareAndSwapInt32(&e.tornDown, 0, 1) {
		return
	}
	lib.Trace("[%s] ENV teardown", e.id)
	for _, p := range e.registry.list() {
		p.mailbox.PushSignal(core.KillSignal(core.PID{}))
		e.metrics.signalSent()
	}
	if atomic.LoadInt64(&e.alive) == 0 {
		e.doneOnce.Do(func() { close(e.donec) })
	}
}

// Wait blocks until a teardown completed: every member terminated and
// released its identity.
func (e *Environment) Wait() {
	<-e.donec
}

// WaitWithTimeout is Wait bounded by a deadline.
func (e *Environment) WaitWithTimeout(d time.Duration) error {
	timer := lib.TakeTimer()
	defer lib.ReleaseTimer(timer)
	timer.Reset(d)

	select {
	case <-timer.C:
		return core.ErrTimeout
	case <-e.donec:
		return nil
	}
}

// Stop tears the environment down, waits for the members to exit and
// stops the worker pool.
func (e *Environment) Stop() {
	e.Teardown()
	e.Wait()
	e.scheduler.stop()
	e.metrics.unregister()
}

// route delivers a message to the mailbox of the target process.
func (e *Environment) route(to core.PID, m *core.Message) error {
	p, err := e.registry.resolve(to)
	if err != nil {
		return err
	}
	return p.Deliver(m)
}

func (e *Environment) kill(p *process, from core.PID) error {
	if err := p.mailbox.PushSignal(core.KillSignal(from)); err != nil {
		return err
	}
	e.metrics.signalSent()
	return nil
}

// release is the identity-release step of a terminating driver.
func (e *Environment) release(p *process, reason error) {
	e.registry.release(p.pid)
	e.metrics.terminated(reason)
	if atomic.AddInt64(&e.alive, -1) == 0 && !e.IsAlive() {
		e.doneOnce.Do(func() { close(e.donec) })
	}
}
