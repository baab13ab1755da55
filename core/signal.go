package core

import (
	"fmt"
)

// SignalKind enumerates the closed set of control events. Signals are
// constructed by the runtime only (Kill by an external kill request or
// environment teardown, Exit/Link/Unlink by the link graph) and always
// take priority over mailbox messages for the same receiver.
type SignalKind int32

const (
	SignalKill   SignalKind = 1
	SignalExit   SignalKind = 2
	SignalLink   SignalKind = 3
	SignalUnlink SignalKind = 4
)

func (k SignalKind) String() string {
	switch k {
	case SignalKill:
		return "kill"
	case SignalExit:
		return "exit"
	case SignalLink:
		return "link"
	case SignalUnlink:
		return "unlink"
	}
	return fmt.Sprintf("signal#%d", int32(k))
}

// Signal is a control event delivered to a process out of band with
// respect to its mailbox messages. The fields are unexported: signals
// cannot be sent through the regular message path, which prevents
// spoofed control events.
type Signal struct {
	kind   SignalKind
	from   PID
	reason error
	peer   PID
}

func (s Signal) Kind() SignalKind { return s.kind }
func (s Signal) From() PID        { return s.from }
func (s Signal) Reason() error    { return s.reason }
func (s Signal) Peer() PID        { return s.peer }

func (s Signal) String() string {
	switch s.kind {
	case SignalExit:
		return fmt.Sprintf("exit(%s, %s)", s.from, s.reason)
	case SignalLink, SignalUnlink:
		return fmt.Sprintf("%s(%s)", s.kind, s.peer)
	}
	return s.kind.String()
}

// KillSignal is the only cancellation primitive. From may be zero for an
// anonymous kill (environment teardown).
func KillSignal(from PID) Signal {
	return Signal{kind: SignalKill, from: from}
}

// ExitSignal carries termination propagation from a linked process.
func ExitSignal(from PID, reason error) Signal {
	return Signal{kind: SignalExit, from: from, reason: reason}
}

// LinkSignal notifies a process that peer has linked to it.
func LinkSignal(peer PID) Signal {
	return Signal{kind: SignalLink, peer: peer}
}

// UnlinkSignal notifies a process that peer has removed the link.
func UnlinkSignal(peer PID) Signal {
	return Signal{kind: SignalUnlink, peer: peer}
}
