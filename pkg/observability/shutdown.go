package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds a whole shutdown when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc stops one component. It must return once ctx is done.
type ShutdownFunc func(context.Context) error

type stage struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager stops registered components one after another, in
// registration order, under a single deadline. Register listeners first and
// telemetry last so in-flight work is still recorded while it drains.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu     sync.Mutex
	stages []stage
	once   sync.Once
	err    error
}

func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{logger: logger, timeout: timeout}
}

// Register appends a stage.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stages = append(sm.stages, stage{name: name, fn: fn})
}

// Wait blocks until ctx is done, then shuts down.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.WithField("cause", context.Cause(ctx).Error()).Info("Starting graceful shutdown")
	return sm.Shutdown()
}

// Shutdown runs every stage once. A failing stage does not stop later ones;
// the deadline does. Later calls return the first result.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() { sm.err = sm.run() })
	return sm.err
}

func (sm *ShutdownManager) run() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	stages := append([]stage(nil), sm.stages...)
	sm.mu.Unlock()

	var errs []error
	for i, s := range stages {
		if ctx.Err() != nil {
			skipped := len(stages) - i
			sm.logger.WithField("skipped", skipped).Warn("Shutdown deadline reached")
			errs = append(errs, fmt.Errorf("shutdown deadline reached with %d stages left: %w", skipped, ctx.Err()))
			break
		}

		log := sm.logger.WithField("stage", s.name)
		start := time.Now()
		if err := sm.call(ctx, s); err != nil {
			log.WithError(err).Error("Shutdown stage failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Shutdown stage complete")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// call runs one stage, abandoning it at the deadline.
func (sm *ShutdownManager) call(ctx context.Context, s stage) error {
	done := make(chan error, 1)
	go func() {
		defer RecoverPanicWithCallback(sm.logger, "shutdown "+s.name, func() {
			done <- errors.New("panic during shutdown")
		})
		done <- s.fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
