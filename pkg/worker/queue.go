package worker

import (
	"sync"
)

// jobQueue is an unbounded FIFO of closures. Pushing never blocks, so the
// bridge read loop can hand work to the interpreter goroutine while that
// goroutine is itself waiting on a bridge response.
type jobQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{signal: make(chan struct{}, 1)}
}

func (q *jobQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *jobQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

// drain runs queued jobs until the queue is empty.
func (q *jobQueue) drain() {
	for fn, ok := q.pop(); ok; fn, ok = q.pop() {
		fn()
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
