package core

import (
	"io"
	"sync/atomic"
)

// Message tags used by the runtime for exit/down notifications delivered
// through the regular mailbox.
const (
	TagExit = "$exit"
	TagDown = "$down"
)

// Filter is a predicate for selective receive. A nil Filter matches any
// message. Ordering among messages matching the same filter is exactly
// arrival order.
type Filter func(*Message) bool

// FilterTag matches messages carrying the given tag.
func FilterTag(tag string) Filter {
	return func(m *Message) bool {
		return m.Tag == tag
	}
}

// Message is an immutable, owned payload: a byte buffer plus an ordered
// sequence of transferable resource handles. Resources are moved into a
// message on construction and moved out by the receiver; duplication is
// not permitted.
type Message struct {
	From PID
	Tag  string
	Data []byte

	// Exit is set on runtime-generated exit/down notifications
	// (TagExit, TagDown).
	Exit *Exit

	resources []*Resource
}

// NewMessage constructs a message from a buffer and zero or more resource
// handles. Every handle is moved into the message; reusing a handle that
// was already transferred fails with ErrResourceMoved and releases any
// handles captured so far back to the caller.
func NewMessage(tag string, data []byte, resources ...*Resource) (*Message, error) {
	for i, r := range resources {
		if err := r.capture(); err != nil {
			for _, captured := range resources[:i] {
				captured.uncapture()
			}
			return nil, err
		}
	}
	return &Message{
		Tag:       tag,
		Data:      data,
		resources: resources,
	}, nil
}

// ExitMessage is the trap-exit translation of termination propagation:
// an ordinary deliverable message the receiving process must handle
// explicitly. Constructed by the runtime.
func ExitMessage(from PID, reason error) *Message {
	return &Message{
		From: from,
		Tag:  TagExit,
		Exit: &Exit{From: from, Reason: reason},
	}
}

// DownMessage notifies a monitoring process of the monitored process's
// termination. Monitors only observe; the notification never crashes
// the receiver. Constructed by the runtime.
func DownMessage(from PID, reason error) *Message {
	return &Message{
		From: from,
		Tag:  TagDown,
		Exit: &Exit{From: from, Reason: reason},
	}
}

// Resources returns the number of resource handles still held by the
// message.
func (m *Message) Resources() int {
	return len(m.resources)
}

// TakeResource moves the i-th resource handle out of the message. A
// second take of the same index fails with ErrResourceMoved.
func (m *Message) TakeResource(i int) (*Resource, error) {
	if i < 0 || i >= len(m.resources) {
		return nil, ErrResourceMoved
	}
	r := m.resources[i]
	if r == nil {
		return nil, ErrResourceMoved
	}
	m.resources[i] = nil
	r.uncapture()
	return r, nil
}

// dispose drops all resources still owned by an unreceived message,
// closing the ones that are closable.
func (m *Message) dispose() {
	for i, r := range m.resources {
		if r == nil {
			continue
		}
		m.resources[i] = nil
		r.dispose()
	}
}

// Resource states.
const (
	resourceHeld     int32 = 0 // usable by its current owner
	resourceCaptured int32 = 1 // moved into a message
	resourceConsumed int32 = 2 // moved out of the owner, or disposed
)

// Resource is a move-only handle around an externally-defined transferable
// value (socket, sub-buffer, process reference). The core never inspects
// the value; it only moves the handle.
type Resource struct {
	value any
	state int32
}

// NewResource wraps a transferable value into a move-only handle.
func NewResource(value any) *Resource {
	return &Resource{value: value}
}

// Take consumes the handle and returns the wrapped value. The handle is
// unusable afterwards; a repeated Take or a capture into a message fails
// with ErrResourceMoved.
func (r *Resource) Take() (any, error) {
	if !atomic.CompareAndSwapInt32(&r.state, resourceHeld, resourceConsumed) {
		return nil, ErrResourceMoved
	}
	return r.value, nil
}

// Moved reports whether the handle has been transferred away.
func (r *Resource) Moved() bool {
	return atomic.LoadInt32(&r.state) != resourceHeld
}

func (r *Resource) capture() error {
	if !atomic.CompareAndSwapInt32(&r.state, resourceHeld, resourceCaptured) {
		return ErrResourceMoved
	}
	return nil
}

func (r *Resource) uncapture() {
	atomic.CompareAndSwapInt32(&r.state, resourceCaptured, resourceHeld)
}

func (r *Resource) dispose() {
	if !atomic.CompareAndSwapInt32(&r.state, resourceCaptured, resourceConsumed) {
		return
	}
	if closer, ok := r.value.(io.Closer); ok {
		closer.Close()
	}
	r.value = nil
}
