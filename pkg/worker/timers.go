package worker

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

// timerSet backs setTimeout. Expired timers are queued and run on the
// interpreter goroutine, never on the timer's own goroutine.
type timerSet struct {
	mu     sync.Mutex
	nextID int64
	active map[int64]*time.Timer
	queue  *jobQueue
	invoke func(fn goja.Callable, args []goja.Value)
}

func newTimerSet(invoke func(goja.Callable, []goja.Value)) *timerSet {
	return &timerSet{
		active: make(map[int64]*time.Timer),
		queue:  newJobQueue(),
		invoke: invoke,
	}
}

func (t *timerSet) schedule(delayMs int64, fn goja.Callable, args []goja.Value) int64 {
	if delayMs < 0 {
		delayMs = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.active[id] = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		t.queue.push(func() {
			if t.take(id) {
				t.invoke(fn, args)
			}
		})
	})
	return id
}

// take removes id, reporting whether it was still scheduled.
func (t *timerSet) take(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}

func (t *timerSet) cancel(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.active[id]; ok {
		timer.Stop()
		delete(t.active, id)
	}
}

// pending returns the number of timers that have not run yet.
func (t *timerSet) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.active {
		timer.Stop()
		delete(t.active, id)
	}
}
