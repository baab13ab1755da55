package env

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"vessel.services/vessel/core"
)

func popSignal(t *testing.T, p *process) core.Signal {
	t.Helper()
	s, ok := p.mailbox.PopSignal()
	require.True(t, ok)
	return s
}

func popDown(t *testing.T, p *process) *core.Exit {
	t.Helper()
	m, ok := p.mailbox.ReceiveMatch(core.FilterTag(core.TagDown))
	require.True(t, ok)
	require.NotNil(t, m.Exit)
	return m.Exit
}

func TestLinkIdempotent(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()
	b := r.spawnStub()

	require.NoError(t, l.link(a.pid, b.pid))
	require.NoError(t, l.link(a.pid, b.pid))
	require.NoError(t, l.link(b.pid, a.pid))

	require.Equal(t, []core.PID{b.pid}, l.linksOf(a.pid))
	require.Equal(t, []core.PID{a.pid}, l.linksOf(b.pid))

	// exactly one notification despite the repeats
	s := popSignal(t, b)
	require.Equal(t, core.SignalLink, s.Kind())
	require.Equal(t, a.pid, s.Peer())
	require.Equal(t, int64(0), b.mailbox.SignalsLen())
}

func TestLinkSelfNoop(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()

	require.NoError(t, l.link(a.pid, a.pid))
	require.Empty(t, l.linksOf(a.pid))
}

func TestLinkDeadPeer(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()
	dead := r.spawnStub()
	r.release(dead.pid)

	require.NoError(t, l.link(a.pid, dead.pid))

	// the caller observes the exit as if the peer died right after linking
	s := popSignal(t, a)
	require.Equal(t, core.SignalExit, s.Kind())
	require.Equal(t, dead.pid, s.From())
	require.ErrorIs(t, s.Reason(), core.ErrProcessUnknown)
	require.Empty(t, l.linksOf(a.pid))
}

func TestUnlink(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()
	b := r.spawnStub()

	require.NoError(t, l.link(a.pid, b.pid))
	popSignal(t, b)

	require.NoError(t, l.unlink(a.pid, b.pid))
	require.Empty(t, l.linksOf(a.pid))
	require.Empty(t, l.linksOf(b.pid))

	s := popSignal(t, b)
	require.Equal(t, core.SignalUnlink, s.Kind())
	require.Equal(t, a.pid, s.Peer())

	// repeated unlink sends nothing
	require.NoError(t, l.unlink(a.pid, b.pid))
	require.Equal(t, int64(0), b.mailbox.SignalsLen())
}

func TestTerminatedPropagatesToLinks(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()
	b := r.spawnStub()
	require.NoError(t, l.link(a.pid, b.pid))
	popSignal(t, b)

	errBoom := errors.New("boom")
	b.setState(core.ProcessStateTerminated)
	l.terminated(b.pid, errBoom)

	s := popSignal(t, a)
	require.Equal(t, core.SignalExit, s.Kind())
	require.Equal(t, b.pid, s.From())
	require.ErrorIs(t, s.Reason(), errBoom)

	// the adjacency is gone in both directions
	require.Empty(t, l.linksOf(a.pid))
	require.Empty(t, l.linksOf(b.pid))

	// a second termination of the same process notifies nobody
	l.terminated(b.pid, errBoom)
	require.Equal(t, int64(0), a.mailbox.SignalsLen())
}

func TestTerminatedNormalDoesNotPropagate(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	a := r.spawnStub()
	b := r.spawnStub()
	observer := r.spawnStub()
	require.NoError(t, l.link(a.pid, b.pid))
	require.NoError(t, l.monitor(observer.pid, b.pid))
	popSignal(t, b)

	b.setState(core.ProcessStateTerminated)
	l.terminated(b.pid, core.ReasonNormal)

	// the linked peer hears nothing, the monitor always does
	require.Equal(t, int64(0), a.mailbox.SignalsLen())
	down := popDown(t, observer)
	require.Equal(t, b.pid, down.From)
	require.ErrorIs(t, down.Reason, core.ReasonNormal)
}

func TestMonitor(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	observer := r.spawnStub()
	target := r.spawnStub()

	require.ErrorIs(t, l.monitor(observer.pid, observer.pid), core.ErrNotAllowed)
	require.NoError(t, l.monitor(observer.pid, target.pid))
	require.NoError(t, l.monitor(observer.pid, target.pid))
	require.Equal(t, []core.PID{target.pid}, l.monitorsOf(observer.pid))

	errBoom := errors.New("boom")
	target.setState(core.ProcessStateTerminated)
	l.terminated(target.pid, errBoom)

	down := popDown(t, observer)
	require.Equal(t, target.pid, down.From)
	require.ErrorIs(t, down.Reason, errBoom)

	// exactly once despite the repeated monitor call
	require.Equal(t, int64(0), observer.mailbox.Len())
	require.Empty(t, l.monitorsOf(observer.pid))
}

func TestDownDeliveredToFullMailbox(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	target := r.spawnStub()

	observer := &process{
		pid:     r.allocate(),
		mailbox: core.NewMailbox(1),
		state:   int32(core.ProcessStateRunnable),
	}
	r.register(observer)
	filler, err := core.NewMessage("filler", nil)
	require.NoError(t, err)
	require.NoError(t, observer.mailbox.Push(filler))

	require.NoError(t, l.monitor(observer.pid, target.pid))
	target.setState(core.ProcessStateTerminated)
	l.terminated(target.pid, core.ReasonKilled)

	// the bound applies to regular traffic only
	down := popDown(t, observer)
	require.Equal(t, target.pid, down.From)
	require.ErrorIs(t, down.Reason, core.ReasonKilled)
}

func TestMonitorDeadTarget(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	observer := r.spawnStub()
	dead := r.spawnStub()
	r.release(dead.pid)

	require.NoError(t, l.monitor(observer.pid, dead.pid))

	down := popDown(t, observer)
	require.Equal(t, dead.pid, down.From)
	require.ErrorIs(t, down.Reason, core.ErrProcessUnknown)
}

func TestDemonitor(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	observer := r.spawnStub()
	target := r.spawnStub()

	require.NoError(t, l.monitor(observer.pid, target.pid))
	require.NoError(t, l.demonitor(observer.pid, target.pid))
	require.NoError(t, l.demonitor(observer.pid, target.pid))

	target.setState(core.ProcessStateTerminated)
	l.terminated(target.pid, errors.New("boom"))
	require.Equal(t, int64(0), observer.mailbox.Len())
}

func TestLinkRacingTermination(t *testing.T) {
	// whichever of link and terminated removes the edge delivers the
	// notification: the caller gets exactly one exit, never zero or two
	for i := 0; i < 200; i++ {
		r := newTestRegistry()
		l := newLinks(r)
		a := r.spawnStub()
		b := r.spawnStub()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.link(a.pid, b.pid)
		}()
		go func() {
			defer wg.Done()
			b.setState(core.ProcessStateTerminated)
			l.terminated(b.pid, core.ReasonKilled)
			r.release(b.pid)
		}()
		wg.Wait()

		exits := 0
		for {
			s, ok := a.mailbox.PopSignal()
			if !ok {
				break
			}
			if s.Kind() == core.SignalExit {
				require.Equal(t, b.pid, s.From())
				exits++
			}
		}
		require.Equal(t, 1, exits)
		require.Empty(t, l.linksOf(a.pid))
	}
}

func TestTerminatedDropsOwnMonitors(t *testing.T) {
	r := newTestRegistry()
	l := newLinks(r)
	watcher := r.spawnStub()
	target := r.spawnStub()
	require.NoError(t, l.monitor(watcher.pid, target.pid))

	// the watcher dies first; the target's later death must not touch it
	watcher.setState(core.ProcessStateTerminated)
	l.terminated(watcher.pid, core.ReasonKilled)
	require.Empty(t, l.monitorsOf(watcher.pid))

	target.setState(core.ProcessStateTerminated)
	l.terminated(target.pid, core.ReasonKilled)
	require.Equal(t, int64(0), watcher.mailbox.Len())
}
