package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("worker pool shut down")

var (
	loggerMu sync.RWMutex
	logger   = logrus.StandardLogger()
)

// SetLogger replaces the logger used for task failures and panics.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

func log() *logrus.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SafeGo runs fn in a new goroutine under a timeout derived from parentCtx.
// Errors are logged and panics are recovered, so a failing task never takes
// the process down.
//
//	SafeGo(ctx, 5*time.Second, "capability clipboard.copy", func(ctx context.Context) error {
//	    return reply(ctx)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := runTask(ctx, fn); err != nil {
			log().WithField("task", taskName).WithError(err).Warn("Background task failed")
		}
	}()
}

// runTask calls fn, converting a panic into an error.
func runTask(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log().WithField("stack", string(debug.Stack())).Errorf("Recovered panic: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// WorkerPool runs submitted tasks on a fixed number of goroutines.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	workCh   chan func(context.Context) error
	errCh    chan error
	doneCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts workers goroutines; every task gets its own timeout.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		errCh:    make(chan error, workers*10),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work()
		}()
	}
	go func() {
		wg.Wait()
		close(p.doneCh)
	}()
	return p
}

// Submit queues fn. It blocks while the queue is full.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Errors returns the channel task failures are reported on.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

// close stops accepting work; queued tasks still run.
func (p *WorkerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

// Wait closes the pool and blocks until every queued task has run.
func (p *WorkerPool) Wait() {
	p.close()
	<-p.doneCh
	p.cancel()
}

// Shutdown closes the pool and waits up to timeout for queued tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.close()
	defer p.cancel()

	select {
	case <-p.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.taskName, timeout)
	}
}

func (p *WorkerPool) work() {
	for fn := range p.workCh {
		if p.ctx.Err() != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		err := runTask(ctx, fn)
		cancel()

		if err != nil {
			select {
			case p.errCh <- err:
			default:
				log().WithField("task", p.taskName).WithError(err).Warn("Error channel full, dropping error")
			}
		}
	}
}

// Batch applies fn to every item with at most workers running at once and
// returns the errors in no particular order.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout)

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			if err := runTask(ctx, func(ctx context.Context) error { return fn(ctx, item) }); err != nil {
				collect(err)
			}
			return nil
		}); err != nil {
			collect(err)
			break
		}
	}

	pool.Wait()
	return errs
}
