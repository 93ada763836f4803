package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultMaintenanceSchedule runs Optimize twice a minute.
const DefaultMaintenanceSchedule = "@every 30s"

// Maintenance periodically samples memory and optimizes the manager.
type Maintenance struct {
	cron    *cron.Cron
	manager *Manager
	timeout time.Duration
	log     *logrus.Logger

	mu       sync.Mutex
	onReport []func(OptimizeReport)
}

// NewMaintenance schedules Optimize on the manager. schedule accepts standard
// cron expressions and descriptors such as "@every 1m".
func NewMaintenance(manager *Manager, schedule string, log *logrus.Logger) (*Maintenance, error) {
	if log == nil {
		log = logrus.New()
	}
	if schedule == "" {
		schedule = DefaultMaintenanceSchedule
	}

	m := &Maintenance{
		cron:    cron.New(),
		manager: manager,
		timeout: 10 * time.Second,
		log:     log,
	}
	if _, err := m.cron.AddFunc(schedule, m.Run); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance %q: %w", schedule, err)
	}
	return m, nil
}

// Run performs one maintenance pass.
func (m *Maintenance) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	report := m.manager.Optimize(ctx)

	m.mu.Lock()
	hooks := append([]func(OptimizeReport){}, m.onReport...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(report)
	}

	trend := m.manager.Monitor().Trend()
	m.log.WithFields(logrus.Fields{
		"utilization": report.Sample.Utilization,
		"trend":       trend,
		"workers":     m.manager.ActiveWorkers(),
	}).Debug("Maintenance pass")
}

// OnReport registers fn to receive the report of every pass.
func (m *Maintenance) OnReport(fn func(OptimizeReport)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReport = append(m.onReport, fn)
}

// Start begins running the schedule.
func (m *Maintenance) Start() {
	m.cron.Start()
	m.log.Info("Maintenance scheduler started")
}

// Stop halts the schedule and returns a context done once a running pass
// finishes.
func (m *Maintenance) Stop() context.Context {
	return m.cron.Stop()
}
