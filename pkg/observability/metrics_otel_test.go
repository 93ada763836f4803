package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/platinummonkey/fleet/pkg/plugins"
)

func setupTestMeter(t *testing.T) (*OTelMetrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewOTelMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestOTelMetrics_Recorder tests plugin activity instruments
func TestOTelMetrics_Recorder(t *testing.T) {
	m, reader := setupTestMeter(t)

	m.PluginLoaded("todo", 10*time.Millisecond, nil)
	m.CommandExecuted("todo", "list", time.Millisecond, nil)
	m.CommandExecuted("todo", "sync", time.Millisecond, errors.New("boom"))
	m.EventDispatched("todo", nil)
	m.WorkersActive(2)

	got := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, got["fleet.plugin.loads"]))
	assert.Equal(t, int64(2), sumOf(t, got["fleet.commands"]))
	assert.Equal(t, int64(1), sumOf(t, got["fleet.view.events"]))

	gauge, ok := got["fleet.workers.active"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
}

// TestOTelMetrics_CacheObserver tests cache instruments
func TestOTelMetrics_CacheObserver(t *testing.T) {
	m, reader := setupTestMeter(t)

	m.CacheHit("component")
	m.CacheHit("component")
	m.CacheMiss("component")
	m.CacheEvict("component", "lru")
	m.CacheSize("component", 4, 2048)

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["cache.hits.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["cache.misses.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["cache.evictions.total"]))
}

type countRecorder struct{ commands int }

func (c *countRecorder) PluginLoaded(string, time.Duration, error)            {}
func (c *countRecorder) CommandExecuted(string, string, time.Duration, error) { c.commands++ }
func (c *countRecorder) EventDispatched(string, error)                        {}
func (c *countRecorder) WorkersActive(int)                                    {}

// TestRecorders tests fanning out to every recorder
func TestRecorders(t *testing.T) {
	a, b := &countRecorder{}, &countRecorder{}
	var r plugins.Recorder = Recorders{a, b}

	r.CommandExecuted("todo", "list", time.Millisecond, nil)
	assert.Equal(t, 1, a.commands)
	assert.Equal(t, 1, b.commands)
}
