package env

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"vessel.services/vessel/core"
	"vessel.services/vessel/lib"
)

const startID = 1000

// registry owns the identifier-to-handle table: the only structure
// mutated by arbitrarily many concurrent callers. Identifiers are never
// reused within an environment session; the Creation value of the PID
// tags the incarnation so a stale identifier is always detectable.
type registry struct {
	environment uuid.UUID
	creation    uint32

	nextID uint64

	processes      map[uint64]*process
	mutexProcesses sync.RWMutex

	names      map[string]core.PID
	mutexNames sync.RWMutex
}

func newRegistry(environment uuid.UUID, creation uint32) *registry {
	return &registry{
		environment: environment,
		creation:    creation,
		nextID:      startID,
		processes:   make(map[uint64]*process),
		names:       make(map[string]core.PID),
	}
}

// allocate returns a fresh identifier that never aliases a currently or
// previously live one.
func (r *registry) allocate() core.PID {
	return core.PID{
		Environment: r.environment,
		ID:          atomic.AddUint64(&r.nextID, 1),
		Creation:    r.creation,
	}
}

func (r *registry) register(p *process) {
	lib.Trace("[%s] REGISTRY register %s", r.environment, p.pid)
	r.mutexProcesses.Lock()
	r.processes[p.pid.ID] = p
	r.mutexProcesses.Unlock()
}

// resolve returns a weak handle: the underlying process may already be
// mid-termination. A Terminated process is deterministically reported
// absent even if the table entry has not been removed yet.
func (r *registry) resolve(pid core.PID) (*process, error) {
	if pid.Environment != r.environment {
		return nil, core.ErrProcessUnknown
	}
	if pid.Creation != r.creation {
		return nil, core.ErrProcessIncarnation
	}
	r.mutexProcesses.RLock()
	p, exist := r.processes[pid.ID]
	r.mutexProcesses.RUnlock()
	if !exist || p.State() == core.ProcessStateTerminated {
		return nil, core.ErrProcessUnknown
	}
	return p, nil
}

// release removes the identifier. Idempotent; called exactly once by the
// owning driver at terminal state, but safe against repetition. The
// removal is a single atomic operation: every subsequent resolve reports
// absence.
func (r *registry) release(pid core.PID) {
	r.mutexProcesses.Lock()
	_, exist := r.processes[pid.ID]
	delete(r.processes, pid.ID)
	r.mutexProcesses.Unlock()
	if !exist {
		return
	}
	lib.Trace("[%s] REGISTRY release %s", r.environment, pid)

	r.mutexNames.Lock()
	for name, owner := range r.names {
		if owner == pid {
			delete(r.names, name)
		}
	}
	r.mutexNames.Unlock()
}

func (r *registry) list() []*process {
	r.mutexProcesses.RLock()
	defer r.mutexProcesses.RUnlock()
	list := make([]*process, 0, len(r.processes))
	for _, p := range r.processes {
		list = append(list, p)
	}
	return list
}

func (r *registry) len() int {
	r.mutexProcesses.RLock()
	defer r.mutexProcesses.RUnlock()
	return len(r.processes)
}

func (r *registry) registerName(name string, pid core.PID) error {
	if name == "" {
		return core.ErrNameUnknown
	}
	if _, err := r.resolve(pid); err != nil {
		return err
	}
	r.mutexNames.Lock()
	defer r.mutexNames.Unlock()
	if _, exist := r.names[name]; exist {
		return core.ErrTaken
	}
	lib.Trace("[%s] REGISTRY register name %q => %s", r.environment, name, pid)
	r.names[name] = pid
	return nil
}

func (r *registry) unregisterName(name string) error {
	r.mutexNames.Lock()
	defer r.mutexNames.Unlock()
	if _, exist := r.names[name]; !exist {
		return core.ErrNameUnknown
	}
	delete(r.names, name)
	return nil
}

func (r *registry) whereis(name string) (core.PID, error) {
	r.mutexNames.RLock()
	pid, exist := r.names[name]
	r.mutexNames.RUnlock()
	if !exist {
		return core.PID{}, core.ErrNameUnknown
	}
	return pid, nil
}
