package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Background worker pool
// ---------------------------------------------------------------------------

// Task is a unit of background work.
type Task interface {
	Run()
}

// Pool runs tasks on a fixed set of background goroutines. Submission is
// non-blocking up to the queue capacity; beyond that Submit blocks, which
// naturally throttles producers.
type Pool struct {
	queue   chan Task
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewPool starts a pool with the given worker count and queue capacity.
// Counts below one are clamped to one.
func NewPool(workers, capacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		queue: make(chan Task, capacity),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		task.Run()
	}
}

// Submit queues a task. Returns ErrPoolStopped after Stop.
func (p *Pool) Submit(task Task) error {
	if p.stopped.Load() {
		return ErrPoolStopped
	}
	p.queue <- task
	return nil
}

// Stop drains the queue and waits for in-flight tasks to finish. Safe to
// call once; later Submits fail with ErrPoolStopped.
func (p *Pool) Stop() {
	if p.stopped.CompareAndSwap(false, true) {
		close(p.queue)
	}
	p.wg.Wait()
}
