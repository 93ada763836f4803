package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultCheckTimeout bounds each probe when the request carries no deadline.
const DefaultCheckTimeout = 5 * time.Second

// CheckFunc probes one dependency. A nil error is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthStatus is the body of both probe endpoints.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Uptime       string                      `json:"uptime,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

type DependencyStatus struct {
	Status    string `json:"status"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthChecker aggregates dependency probes. A failing critical dependency
// makes the process unhealthy; any other failure only degrades it.
type HealthChecker struct {
	version string
	started time.Time

	mu     sync.RWMutex
	checks []check
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, started: time.Now()}
}

func (h *HealthChecker) AddCheck(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, critical: critical, fn: fn})
}

// Check runs every probe concurrently.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]DependencyStatus, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			ds := DependencyStatus{Status: StatusHealthy, Critical: c.critical}
			if err := c.fn(ctx); err != nil {
				ds.Message = err.Error()
				ds.Status = StatusDegraded
				if c.critical {
					ds.Status = StatusUnhealthy
				}
			}
			ds.LatencyMS = time.Since(start).Milliseconds()
			results[i] = ds
			return nil
		})
	}
	_ = g.Wait()

	status := h.status(StatusHealthy)
	status.Dependencies = make(map[string]DependencyStatus, len(checks))
	for i, c := range checks {
		ds := results[i]
		status.Dependencies[c.name] = ds
		switch {
		case ds.Status == StatusUnhealthy:
			status.Status = StatusUnhealthy
		case ds.Status == StatusDegraded && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

func (h *HealthChecker) status(s string) HealthStatus {
	return HealthStatus{
		Status:    s,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
}

// Liveness answers 200 whenever the process can serve requests.
func (h *HealthChecker) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, h.status(StatusHealthy))
}

// Readiness answers 503 while a critical dependency is failing.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()
	}

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
