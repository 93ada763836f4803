package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/plugins"
)

// OTelMetrics records plugin activity as OpenTelemetry instruments. It
// implements plugins.Recorder and cache.Observer.
type OTelMetrics struct {
	pluginLoads     metric.Int64Counter
	pluginLoadTime  metric.Float64Histogram
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	viewEvents      metric.Int64Counter
	activeWorkers   metric.Int64Gauge

	cacheHitsTotal      metric.Int64Counter
	cacheMissesTotal    metric.Int64Counter
	cacheEvictionsTotal metric.Int64Counter
	cacheSize           metric.Int64Gauge
}

// NewOTelMetrics creates instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter("github.com/platinummonkey/fleet"))
}

// NewOTelMetricsWithMeter creates instruments on meter.
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	if m.pluginLoads, err = meter.Int64Counter(
		"fleet.plugin.loads",
		metric.WithDescription("Execution host loads"),
		metric.WithUnit("{load}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.plugin.loads counter: %w", err)
	}
	if m.pluginLoadTime, err = meter.Float64Histogram(
		"fleet.plugin.load.duration",
		metric.WithDescription("Execution host load time in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.plugin.load.duration histogram: %w", err)
	}
	if m.commandsTotal, err = meter.Int64Counter(
		"fleet.commands",
		metric.WithDescription("Plugin command executions"),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.commands counter: %w", err)
	}
	if m.commandDuration, err = meter.Float64Histogram(
		"fleet.command.duration",
		metric.WithDescription("Plugin command duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.command.duration histogram: %w", err)
	}
	if m.viewEvents, err = meter.Int64Counter(
		"fleet.view.events",
		metric.WithDescription("UI events forwarded to plugins"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.view.events counter: %w", err)
	}
	if m.activeWorkers, err = meter.Int64Gauge(
		"fleet.workers.active",
		metric.WithDescription("Running execution hosts"),
		metric.WithUnit("{worker}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fleet.workers.active gauge: %w", err)
	}

	if m.cacheHitsTotal, err = meter.Int64Counter(
		"cache.hits.total",
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("{hit}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.hits.total counter: %w", err)
	}
	if m.cacheMissesTotal, err = meter.Int64Counter(
		"cache.misses.total",
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("{miss}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.misses.total counter: %w", err)
	}
	if m.cacheEvictionsTotal, err = meter.Int64Counter(
		"cache.evictions.total",
		metric.WithDescription("Total number of cache evictions"),
		metric.WithUnit("{eviction}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.evictions.total counter: %w", err)
	}
	if m.cacheSize, err = meter.Int64Gauge(
		"cache.size",
		metric.WithDescription("Current cache size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache.size gauge: %w", err)
	}

	return m, nil
}

func errorAttr(err error) attribute.KeyValue {
	return attribute.Bool("error", err != nil)
}

// PluginLoaded implements plugins.Recorder.
func (m *OTelMetrics) PluginLoaded(pluginID string, duration time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("plugin.id", pluginID), errorAttr(err))
	m.pluginLoads.Add(ctx, 1, attrs)
	m.pluginLoadTime.Record(ctx, duration.Seconds(), attrs)
}

// CommandExecuted implements plugins.Recorder.
func (m *OTelMetrics) CommandExecuted(pluginID, command string, duration time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("plugin.id", pluginID),
		attribute.String("plugin.command", command),
		errorAttr(err),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

// EventDispatched implements plugins.Recorder.
func (m *OTelMetrics) EventDispatched(pluginID string, err error) {
	m.viewEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("plugin.id", pluginID), errorAttr(err)))
}

// WorkersActive implements plugins.Recorder.
func (m *OTelMetrics) WorkersActive(n int) {
	m.activeWorkers.Record(context.Background(), int64(n))
}

// CacheHit implements cache.Observer.
func (m *OTelMetrics) CacheHit(name string) {
	m.cacheHitsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache.type", name)))
}

// CacheMiss implements cache.Observer.
func (m *OTelMetrics) CacheMiss(name string) {
	m.cacheMissesTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache.type", name)))
}

// CacheEvict implements cache.Observer.
func (m *OTelMetrics) CacheEvict(name, reason string) {
	m.cacheEvictionsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache.type", name),
		attribute.String("cache.reason", reason),
	))
}

// CacheSize implements cache.Observer.
func (m *OTelMetrics) CacheSize(name string, _ int, bytes int64) {
	m.cacheSize.Record(context.Background(), bytes, metric.WithAttributes(attribute.String("cache.type", name)))
}

// Recorders fans manager activity out to several recorders.
type Recorders []plugins.Recorder

func (rs Recorders) PluginLoaded(pluginID string, duration time.Duration, err error) {
	for _, r := range rs {
		r.PluginLoaded(pluginID, duration, err)
	}
}

func (rs Recorders) CommandExecuted(pluginID, command string, duration time.Duration, err error) {
	for _, r := range rs {
		r.CommandExecuted(pluginID, command, duration, err)
	}
}

func (rs Recorders) EventDispatched(pluginID string, err error) {
	for _, r := range rs {
		r.EventDispatched(pluginID, err)
	}
}

func (rs Recorders) WorkersActive(n int) {
	for _, r := range rs {
		r.WorkersActive(n)
	}
}

// Observers fans cache activity out to several observers.
type Observers []cache.Observer

func (obs Observers) CacheHit(name string) {
	for _, o := range obs {
		o.CacheHit(name)
	}
}

func (obs Observers) CacheMiss(name string) {
	for _, o := range obs {
		o.CacheMiss(name)
	}
}

func (obs Observers) CacheEvict(name, reason string) {
	for _, o := range obs {
		o.CacheEvict(name, reason)
	}
}

func (obs Observers) CacheSize(name string, entries int, bytes int64) {
	for _, o := range obs {
		o.CacheSize(name, entries, bytes)
	}
}
