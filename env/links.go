package env

// https://www.erlang.org/doc/reference_manual/processes.html#links

import (
	"errors"
	"sync"

	"vessel.services/vessel/core"
	"vessel.services/vessel/lib"
)

// links is the failure-propagation graph: symmetric links and asymmetric
// monitors, stored as adjacency sets indexed by PID rather than by live
// handles, so termination cleanup never traverses pointers that might
// already be invalid. Per-relation mutation is serialized by one mutex
// per relation kind; both endpoints and the terminating driver go
// through the same mutex, so a link and a termination can never lose an
// update to each other.
type links struct {
	registry *registry

	links      map[core.PID][]core.PID
	mutexLinks sync.Mutex

	// monitors maps target -> observers.
	monitors      map[core.PID][]core.PID
	mutexMonitors sync.Mutex
}

func newLinks(registry *registry) *links {
	return &links{
		registry: registry,
		links:    make(map[core.PID][]core.PID),
		monitors: make(map[core.PID][]core.PID),
	}
}

// link creates the symmetric relationship between a and b. Idempotent; a
// process cannot link to itself. If the peer is already terminated the
// caller receives the Exit signal before link returns, as if the link
// had existed and the peer had just died.
func (l *links) link(a, b core.PID) error {
	if a == b {
		return nil
	}
	if _, err := l.registry.resolve(a); err != nil {
		return err
	}
	if _, err := l.registry.resolve(b); err != nil {
		l.sendExit(a, b, core.ErrProcessUnknown)
		return nil
	}

	lib.Trace("[%s] LINK %s => %s", l.registry.environment, a, b)
	l.mutexLinks.Lock()
	added := l.addEdge(a, b)
	l.addEdge(b, a)
	l.mutexLinks.Unlock()

	if !added {
		return nil
	}

	// The peer may have terminated between the liveness check and the
	// edge insertion. Whoever removes the edge delivers the
	// notification, so re-check and take the edge back if the peer's
	// termination missed it.
	if _, err := l.registry.resolve(b); err != nil {
		l.mutexLinks.Lock()
		removed := l.removeEdge(a, b)
		l.removeEdge(b, a)
		l.mutexLinks.Unlock()
		if removed {
			l.sendExit(a, b, core.ErrProcessUnknown)
		}
		return nil
	}

	l.sendSignal(b, core.LinkSignal(a))
	return nil
}

// unlink removes both directions of the link. Idempotent; a termination
// signal already in flight is not revoked.
func (l *links) unlink(a, b core.PID) error {
	l.mutexLinks.Lock()
	removed := l.removeEdge(a, b)
	l.removeEdge(b, a)
	l.mutexLinks.Unlock()

	if removed {
		lib.Trace("[%s] UNLINK %s => %s", l.registry.environment, a, b)
		l.sendSignal(b, core.UnlinkSignal(a))
	}
	return nil
}

// monitor makes observer watch for the target's termination without
// linking back. Idempotent. A monitor on a terminated target delivers
// the down notification immediately.
func (l *links) monitor(observer, target core.PID) error {
	if observer == target {
		return core.ErrNotAllowed
	}
	if _, err := l.registry.resolve(observer); err != nil {
		return err
	}
	if _, err := l.registry.resolve(target); err != nil {
		l.sendDown(observer, target, core.ErrProcessUnknown)
		return nil
	}

	lib.Trace("[%s] MONITOR %s => %s", l.registry.environment, observer, target)
	l.mutexMonitors.Lock()
	added := addPID(l.monitors, target, observer)
	l.mutexMonitors.Unlock()

	if !added {
		return nil
	}

	if _, err := l.registry.resolve(target); err != nil {
		l.mutexMonitors.Lock()
		removed := removePID(l.monitors, target, observer)
		l.mutexMonitors.Unlock()
		if removed {
			l.sendDown(observer, target, core.ErrProcessUnknown)
		}
	}
	return nil
}

// demonitor removes the monitor. Idempotent.
func (l *links) demonitor(observer, target core.PID) error {
	l.mutexMonitors.Lock()
	removePID(l.monitors, target, observer)
	l.mutexMonitors.Unlock()
	return nil
}

// terminated propagates the termination of pid with the given reason.
// Called exactly once per termination by the owning driver, after the
// process state became Terminated. It takes an exclusive snapshot of the
// adjacency and removes it atomically, so concurrent unlink or mutual
// termination can neither double-notify nor deadlock.
func (l *links) terminated(pid core.PID, reason error) {
	l.mutexLinks.Lock()
	peers := l.links[pid]
	delete(l.links, pid)
	for _, peer := range peers {
		removePID(l.links, peer, pid)
	}
	l.mutexLinks.Unlock()

	l.mutexMonitors.Lock()
	observers := l.monitors[pid]
	delete(l.monitors, pid)
	// drop the monitors the dead process itself had created
	for target, obs := range l.monitors {
		if containsPID(obs, pid) {
			removePID(l.monitors, target, pid)
		}
	}
	l.mutexMonitors.Unlock()

	// Normal exits do not propagate over links; abnormal ones do. The
	// trap-exit translation happens at the receiving driver, where the
	// flag is owner-local and cannot race with this path.
	if errors.Is(reason, core.ReasonNormal) == false {
		for _, peer := range peers {
			lib.Trace("[%s] LINK exit %s => %s: %s", l.registry.environment, pid, peer, reason)
			l.sendExit(peer, pid, reason)
		}
	}

	// Monitors only observe: they are notified unconditionally and never
	// crash on notification.
	for _, observer := range observers {
		lib.Trace("[%s] MONITOR down %s => %s: %s", l.registry.environment, pid, observer, reason)
		l.sendDown(observer, pid, reason)
	}
}

// linksOf returns a snapshot of the peers linked to pid.
func (l *links) linksOf(pid core.PID) []core.PID {
	l.mutexLinks.Lock()
	defer l.mutexLinks.Unlock()
	return append([]core.PID{}, l.links[pid]...)
}

// monitorsOf returns a snapshot of the targets pid observes.
func (l *links) monitorsOf(pid core.PID) []core.PID {
	l.mutexMonitors.Lock()
	defer l.mutexMonitors.Unlock()
	var targets []core.PID
	for target, observers := range l.monitors {
		for _, o := range observers {
			if o == pid {
				targets = append(targets, target)
				break
			}
		}
	}
	return targets
}

func (l *links) sendExit(to, from core.PID, reason error) {
	p, err := l.registry.resolve(to)
	if err != nil {
		return
	}
	p.mailbox.PushSignal(core.ExitSignal(from, reason))
}

func (l *links) sendDown(to, from core.PID, reason error) {
	p, err := l.registry.resolve(to)
	if err != nil {
		return
	}
	// limit-exempt: a full mailbox must not swallow the notification
	p.mailbox.PushNotify(core.DownMessage(from, reason))
}

func (l *links) sendSignal(to core.PID, s core.Signal) {
	p, err := l.registry.resolve(to)
	if err != nil {
		return
	}
	p.mailbox.PushSignal(s)
}

// addEdge must be called under mutexLinks. Reports whether the edge was
// actually added (false when it already existed).
func (l *links) addEdge(from, to core.PID) bool {
	return addPID(l.links, from, to)
}

// removeEdge must be called under mutexLinks.
func (l *links) removeEdge(from, to core.PID) bool {
	return removePID(l.links, from, to)
}

func addPID(m map[core.PID][]core.PID, key, value core.PID) bool {
	list := m[key]
	for i := range list {
		if list[i] == value {
			return false
		}
	}
	m[key] = append(list, value)
	return true
}

func removePID(m map[core.PID][]core.PID, key, value core.PID) bool {
	list := m[key]
	for i := range list {
		if list[i] != value {
			continue
		}
		list[i] = list[len(list)-1]
		list = list[:len(list)-1]
		if len(list) > 0 {
			m[key] = list
		} else {
			delete(m, key)
		}
		return true
	}
	return false
}

func containsPID(list []core.PID, value core.PID) bool {
	for i := range list {
		if list[i] == value {
			return true
		}
	}
	return false
}
