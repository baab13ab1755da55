// Lock-free MPSC queue (Multiple Producers Single Consumer). Used as the
// backing store for process mailboxes.

package lib

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// QueueMPSC is safe for any number of concurrent producers (Push) and
// exactly one consumer (Pop).
type QueueMPSC struct {
	head   *itemMPSC
	tail   *itemMPSC
	length int64
	limit  int64
}

type itemMPSC struct {
	value any
	next  *itemMPSC
}

// NewQueueMPSC creates an unbounded MPSC queue.
func NewQueueMPSC() *QueueMPSC {
	empty := &itemMPSC{}
	return &QueueMPSC{
		head:  empty,
		tail:  empty,
		limit: math.MaxInt64,
	}
}

// NewQueueLimitMPSC creates an MPSC queue with a bounded length.
// A limit below 1 makes the queue unbounded.
func NewQueueLimitMPSC(limit int64) *QueueMPSC {
	if limit < 1 {
		limit = math.MaxInt64
	}
	empty := &itemMPSC{}
	return &QueueMPSC{
		head:  empty,
		tail:  empty,
		limit: limit,
	}
}

// Push appends the value to the queue. Returns false if the limit
// has been reached.
func (q *QueueMPSC) Push(value any) bool {
	if q.Len()+1 > q.limit {
		return false
	}
	q.ForcePush(value)
	return true
}

// ForcePush appends the value to the queue bypassing the length limit.
func (q *QueueMPSC) ForcePush(value any) {
	i := &itemMPSC{
		value: value,
	}
	atomic.AddInt64(&q.length, 1)
	oldHead := (*itemMPSC)(atomic.SwapPointer((*unsafe.Pointer)(unsafe.Pointer(&q.head)), unsafe.Pointer(i)))
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(&oldHead.next)), unsafe.Pointer(i))
}

// Pop removes the oldest value from the queue. Must be called by the single
// consumer only.
func (q *QueueMPSC) Pop() (any, bool) {
	tailNext := (*itemMPSC)(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(&q.tail.next))))
	if tailNext == nil {
		return nil, false
	}

	value := tailNext.value
	tailNext.value = nil // let the GC free the previous item

	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(&q.tail)), unsafe.Pointer(tailNext))
	atomic.AddInt64(&q.length, -1)
	return value, true
}

// Len returns the number of items in the queue.
func (q *QueueMPSC) Len() int64 {
	return atomic.LoadInt64(&q.length)
}

// Limit returns the length limit of the queue. math.MaxInt64 means unbounded.
func (q *QueueMPSC) Limit() int64 {
	return q.limit
}
