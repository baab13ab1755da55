package env

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vessel.services/vessel/core"
)

func newTestRegistry() *registry {
	return newRegistry(uuid.New(), uint32(time.Now().Unix()))
}

func (r *registry) spawnStub() *process {
	p := &process{
		pid:     r.allocate(),
		mailbox: core.NewMailbox(0),
		state:   int32(core.ProcessStateRunnable),
	}
	r.register(p)
	return p
}

func TestRegistryAllocateUnique(t *testing.T) {
	r := newTestRegistry()
	a := r.allocate()
	b := r.allocate()
	require.NotEqual(t, a.ID, b.ID)
	require.Greater(t, a.ID, uint64(startID))
	require.Equal(t, r.environment, a.Environment)
	require.Equal(t, r.creation, a.Creation)
}

func TestRegistryResolve(t *testing.T) {
	r := newTestRegistry()
	p := r.spawnStub()

	got, err := r.resolve(p.pid)
	require.NoError(t, err)
	require.Same(t, p, got)

	// an identifier from another environment never resolves here
	foreign := p.pid
	foreign.Environment = uuid.New()
	_, err = r.resolve(foreign)
	require.ErrorIs(t, err, core.ErrProcessUnknown)

	// a stale incarnation is detected, not aliased
	stale := p.pid
	stale.Creation = p.pid.Creation - 1
	_, err = r.resolve(stale)
	require.ErrorIs(t, err, core.ErrProcessIncarnation)
}

func TestRegistryTerminatedResolvesAbsent(t *testing.T) {
	r := newTestRegistry()
	p := r.spawnStub()

	// mid-termination: the state flipped but the table entry is still in
	p.setState(core.ProcessStateTerminated)
	_, err := r.resolve(p.pid)
	require.ErrorIs(t, err, core.ErrProcessUnknown)
}

func TestRegistryRelease(t *testing.T) {
	r := newTestRegistry()
	p := r.spawnStub()
	require.NoError(t, r.registerName("worker", p.pid))

	r.release(p.pid)
	_, err := r.resolve(p.pid)
	require.ErrorIs(t, err, core.ErrProcessUnknown)

	// names owned by the released process are removed with it
	_, err = r.whereis("worker")
	require.ErrorIs(t, err, core.ErrNameUnknown)

	// idempotent
	r.release(p.pid)
	require.Equal(t, 0, r.len())
}

func TestRegistryNames(t *testing.T) {
	r := newTestRegistry()
	a := r.spawnStub()
	b := r.spawnStub()

	require.NoError(t, r.registerName("primary", a.pid))
	require.ErrorIs(t, r.registerName("primary", b.pid), core.ErrTaken)

	pid, err := r.whereis("primary")
	require.NoError(t, err)
	require.Equal(t, a.pid, pid)

	require.NoError(t, r.unregisterName("primary"))
	require.ErrorIs(t, r.unregisterName("primary"), core.ErrNameUnknown)

	// a name cannot point at a dead process
	r.release(b.pid)
	require.ErrorIs(t, r.registerName("secondary", b.pid), core.ErrProcessUnknown)
	require.ErrorIs(t, r.registerName("", a.pid), core.ErrNameUnknown)
}
