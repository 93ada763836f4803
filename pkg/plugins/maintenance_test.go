package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fleet/pkg/cache"
)

// TestMaintenance_Run tests a single pass against a critical monitor
func TestMaintenance_Run(t *testing.T) {
	monitor := cache.NewMonitor(cache.DefaultMonitorConfig(), staticSampler(90, 100))
	m := newTestManager(t, Config{Monitor: monitor})
	install(t, m, nil)
	_, err := m.ExecuteCommand(context.Background(), "todo", "list", nil)
	require.NoError(t, err)

	mt, err := NewMaintenance(m, "", m.log)
	require.NoError(t, err)

	var report OptimizeReport
	mt.OnReport(func(r OptimizeReport) { report = r })
	mt.Run()

	assert.Equal(t, 0, m.ActiveWorkers())
	assert.Len(t, monitor.History(), 1)
	assert.True(t, report.Critical)
	assert.Equal(t, 1, report.Unloaded)
}

// TestMaintenance_Schedule tests that the scheduler samples memory on its own
func TestMaintenance_Schedule(t *testing.T) {
	monitor := cache.NewMonitor(cache.DefaultMonitorConfig(), staticSampler(10, 100))
	m := newTestManager(t, Config{Monitor: monitor})

	mt, err := NewMaintenance(m, "@every 1s", nil)
	require.NoError(t, err)
	mt.Start()
	defer func() { <-mt.Stop().Done() }()

	assert.Eventually(t, func() bool { return len(monitor.History()) > 0 }, 3*time.Second, 50*time.Millisecond)
}

// TestMaintenance_InvalidSchedule tests rejecting a bad cron expression
func TestMaintenance_InvalidSchedule(t *testing.T) {
	_, err := NewMaintenance(newTestManager(t, Config{}), "every now and then", nil)
	assert.Error(t, err)
}
