package core

import (
	"sync"
	"sync/atomic"

	"vessel.services/vessel/lib"
)

// Mailbox is owned exclusively by one process. Any number of senders
// append (Push/PushSignal); the owning driver is the sole remover, so no
// cross-removal race is possible by construction.
//
// Messages live in two places: the MPSC queue the senders push into, and
// an owner-local stash holding messages that were scanned by a selective
// receive but did not match its filter. The stash preserves arrival
// order and is always scanned before the queue, so per-sender FIFO is
// kept across selective receives.
type Mailbox struct {
	queue   *lib.QueueMPSC
	signals *lib.QueueMPSC

	stash    []*Message
	stashLen int64

	closed  int32
	waiting int32
	waker   func()

	// serializes post-close draining between Dispose and late pushers;
	// the MPSC queues allow one consumer at a time.
	disposeMutex sync.Mutex
}

// NewMailbox creates a mailbox. limit bounds the message queue length
// (0 or below means unbounded); the signal queue is never bounded so a
// Kill can always be delivered.
func NewMailbox(limit int64) *Mailbox {
	return &Mailbox{
		queue:   lib.NewQueueLimitMPSC(limit),
		signals: lib.NewQueueMPSC(),
	}
}

// SetWaker installs the callback used to wake the owning driver. Must be
// set before the process is handed to the scheduler.
func (mb *Mailbox) SetWaker(waker func()) {
	mb.waker = waker
}

// Push appends a message to the tail of the mailbox. Never blocks the
// sender; wakes the owning driver if it is waiting on an empty mailbox.
func (mb *Mailbox) Push(m *Message) error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		return ErrProcessTerminated
	}
	if mb.queue.Push(m) == false {
		return ErrProcessMailboxFull
	}
	return mb.pushed()
}

// PushNotify appends a runtime-generated termination notification
// (trap-exit translation, monitor down). Exempt from the queue limit: a
// full mailbox must never drop a termination notification.
func (mb *Mailbox) PushNotify(m *Message) error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		return ErrProcessTerminated
	}
	mb.queue.ForcePush(m)
	return mb.pushed()
}

// pushed re-checks the closed flag after an enqueue. A Dispose that
// raced the enqueue may already be past its drain, so the pusher runs
// the drain itself; otherwise the enqueue is visible to the owner and
// the usual wake applies.
func (mb *Mailbox) pushed() error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		mb.drainDisposed()
		return ErrProcessTerminated
	}
	if atomic.SwapInt32(&mb.waiting, 0) == 1 && mb.waker != nil {
		mb.waker()
	}
	return nil
}

// PushSignal appends a control event to the signal queue and immediately
// wakes the owning driver regardless of what it is waiting on.
func (mb *Mailbox) PushSignal(s Signal) error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		return ErrProcessTerminated
	}
	mb.signals.Push(s)
	if atomic.LoadInt32(&mb.closed) == 1 {
		mb.drainDisposed()
		return ErrProcessTerminated
	}
	atomic.StoreInt32(&mb.waiting, 0)
	if mb.waker != nil {
		mb.waker()
	}
	return nil
}

// PopSignal removes the oldest pending signal. Owner only.
func (mb *Mailbox) PopSignal() (Signal, bool) {
	v, ok := mb.signals.Pop()
	if !ok {
		return Signal{}, false
	}
	return v.(Signal), true
}

// ReceiveMatch removes and returns the first message, in arrival order,
// matching the filter. Non-matching messages scanned on the way keep
// their relative order for later receives. Owner only.
func (mb *Mailbox) ReceiveMatch(f Filter) (*Message, bool) {
	for i, m := range mb.stash {
		if f == nil || f(m) {
			mb.stash = append(mb.stash[:i], mb.stash[i+1:]...)
			atomic.AddInt64(&mb.stashLen, -1)
			return m, true
		}
	}
	for {
		v, ok := mb.queue.Pop()
		if !ok {
			return nil, false
		}
		m := v.(*Message)
		if f == nil || f(m) {
			return m, true
		}
		mb.stash = append(mb.stash, m)
		atomic.AddInt64(&mb.stashLen, 1)
	}
}

// Requeue puts a message back at the head of the mailbox. Used when a
// pending Kill preempts a receive that already removed a match. Owner
// only.
func (mb *Mailbox) Requeue(m *Message) {
	mb.stash = append([]*Message{m}, mb.stash...)
	atomic.AddInt64(&mb.stashLen, 1)
}

// WakeOnPush arms the wake callback for the next Push. The owner must
// re-check Pending afterwards: a message pushed between the last failed
// receive and the arming would otherwise be a lost wakeup.
func (mb *Mailbox) WakeOnPush() {
	atomic.StoreInt32(&mb.waiting, 1)
}

// Pending reports whether the owner has anything to look at: an
// unscanned message or a pending signal.
func (mb *Mailbox) Pending() bool {
	return mb.queue.Len() > 0 || mb.signals.Len() > 0
}

// Len returns the number of undelivered messages.
func (mb *Mailbox) Len() int64 {
	return mb.queue.Len() + atomic.LoadInt64(&mb.stashLen)
}

// SignalsLen returns the number of pending signals.
func (mb *Mailbox) SignalsLen() int64 {
	return mb.signals.Len()
}

// Dispose closes the mailbox for senders and drops every unreceived
// message along with its owned resources. Owner only, at termination.
func (mb *Mailbox) Dispose() {
	atomic.StoreInt32(&mb.closed, 1)
	for _, m := range mb.stash {
		m.dispose()
	}
	mb.stash = nil
	atomic.StoreInt64(&mb.stashLen, 0)
	mb.drainDisposed()
}

// drainDisposed pops and disposes everything reachable in the queues
// once the mailbox is closed. A push that was in flight when the closed
// flag was set lands after the owner's drain; its pusher observes the
// flag on its re-check and drains here too, so every accepted message is
// disposed by exactly one drainer.
func (mb *Mailbox) drainDisposed() {
	mb.disposeMutex.Lock()
	defer mb.disposeMutex.Unlock()
	for {
		v, ok := mb.queue.Pop()
		if !ok {
			break
		}
		v.(*Message).dispose()
	}
	for {
		if _, ok := mb.signals.Pop(); !ok {
			break
		}
	}
}
