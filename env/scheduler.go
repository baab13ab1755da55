package env

import (
	"runtime"
	"sync"

	"vessel.services/vessel/core"
)

// scheduler multiplexes process drivers over a fixed pool of worker
// goroutines. A process occupies a worker only while Running; whenever
// it suspends the worker goes back to pulling from the run queue. All
// waits are event-driven: a parked process is re-enqueued by a mailbox
// wake, a signal or a timer, never by polling.
//
// The run queue is consumed by every worker, so unlike a mailbox it
// cannot use the MPSC queue; a condvar-guarded FIFO serves it instead.
type scheduler struct {
	mutex   sync.Mutex
	cond    *sync.Cond
	queue   []*process
	stopped bool

	wg sync.WaitGroup
}

func newScheduler(workers int) *scheduler {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	s := &scheduler{}
	s.cond = sync.NewCond(&s.mutex)
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// enqueue hands a Runnable driver to the pool. Only the caller that
// performed the transition into Runnable may enqueue, so a driver is
// never queued twice. Never blocks.
func (s *scheduler) enqueue(p *process) {
	s.mutex.Lock()
	s.queue = append(s.queue, p)
	s.mutex.Unlock()
	s.cond.Signal()
}

// runnable moves a parked driver back to the run queue. Safe to call
// from any goroutine and any number of times; only the successful state
// transition enqueues.
func (s *scheduler) runnable(p *process) {
	if p.casState(core.ProcessStateWaiting, core.ProcessStateRunnable) {
		s.enqueue(p)
	}
}

// stop shuts the worker pool down once the queue drains. Called after
// every process of the environment has terminated.
func (s *scheduler) stop() {
	s.mutex.Lock()
	s.stopped = true
	s.mutex.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
}

func (s *scheduler) worker() {
	defer s.wg.Done()
	for {
		s.mutex.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.stopped {
			s.mutex.Unlock()
			return
		}
		p := s.queue[0]
		s.queue = s.queue[1:]
		s.mutex.Unlock()

		p.run()
	}
}
