package worker

import (
	"math/rand/v2"
)

// Pool is a fixed number of independent, lazily-activated worker slots.
// Dispatching a task picks a slot at random rather than round-robin: with
// short-lived handlers and many short-lived connections, random placement
// spreads load just as evenly and needs no shared cursor between the
// multiple Dispatch goroutines that all submit into the same Pool.
type Pool struct {
	workers []*worker
}

// NewPool returns a Pool with the given number of slots. size must be at
// least 1; server.New replaces a non-positive worker count with the default
// before the server calls this.
func NewPool(size int) *Pool {
	workers := make([]*worker, size)
	for i := range workers {
		workers[i] = newWorker()
	}
	return &Pool{workers: workers}
}

// Submit hands a task to a randomly chosen worker slot.
func (p *Pool) Submit(task Task) {
	p.workers[rand.IntN(len(p.workers))].add(task)
}

// Wait blocks until every worker slot has drained its queue and its
// goroutine (if any) has exited. Callers must stop submitting new tasks
// before calling Wait, or it may never return.
func (p *Pool) Wait() {
	for _, w := range p.workers {
		w.wg.Wait()
	}
}

// Size reports the configured number of worker slots.
func (p *Pool) Size() int {
	return len(p.workers)
}
