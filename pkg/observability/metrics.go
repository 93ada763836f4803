package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/fleet/pkg/cache"
)

// Metrics holds all Prometheus metrics. It implements cache.Observer and
// plugins.Recorder.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Plugin metrics
	PluginLoadsTotal    *prometheus.CounterVec
	PluginLoadDuration  *prometheus.HistogramVec
	CommandsTotal       *prometheus.CounterVec
	CommandDuration     *prometheus.HistogramVec
	ViewEventsTotal     *prometheus.CounterVec
	ActiveWorkers       prometheus.Gauge
	PluginsInstalled    prometheus.Gauge
	PackagesRejected    *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheEntries        *prometheus.GaugeVec
	CacheSizeBytes      *prometheus.GaugeVec

	// Memory metrics
	MemoryUsedBytes   prometheus.Gauge
	MemoryLimitBytes  prometheus.Gauge
	MemoryUtilization prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_plugin_loads_total",
				Help: "Total number of execution host loads",
			},
			[]string{"plugin", "status"},
		),
		PluginLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_plugin_load_duration_seconds",
				Help:    "Time to start a host and evaluate a plugin module",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"plugin"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_commands_total",
				Help: "Total number of plugin command executions",
			},
			[]string{"plugin", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_command_duration_seconds",
				Help:    "Plugin command duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"plugin"},
		),
		ViewEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_view_events_total",
				Help: "Total number of UI events forwarded to plugins",
			},
			[]string{"plugin", "status"},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_workers_active",
				Help: "Number of running execution hosts",
			},
		),
		PluginsInstalled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_plugins_installed",
				Help: "Number of installed plugins",
			},
		),
		PackagesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_packages_rejected_total",
				Help: "Total number of packages that failed to install",
			},
			[]string{"source"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_cache_evictions_total",
				Help: "Total number of cache evictions",
			},
			[]string{"cache", "reason"},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleet_cache_entries",
				Help: "Current number of cache entries",
			},
			[]string{"cache"},
		),
		CacheSizeBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleet_cache_size_bytes",
				Help: "Current cache size in bytes",
			},
			[]string{"cache"},
		),

		MemoryUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_memory_used_bytes",
				Help: "Heap in use at the last memory sample",
			},
		),
		MemoryLimitBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_memory_limit_bytes",
				Help: "Memory limit at the last memory sample",
			},
		),
		MemoryUtilization: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_memory_utilization_ratio",
				Help: "Used over limit at the last memory sample",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PluginLoadsTotal,
		m.PluginLoadDuration,
		m.CommandsTotal,
		m.CommandDuration,
		m.ViewEventsTotal,
		m.ActiveWorkers,
		m.PluginsInstalled,
		m.PackagesRejected,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheEntries,
		m.CacheSizeBytes,
		m.MemoryUsedBytes,
		m.MemoryLimitBytes,
		m.MemoryUtilization,
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit(name string) {
	m.CacheHitsTotal.WithLabelValues(name).Inc()
}

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss(name string) {
	m.CacheMissesTotal.WithLabelValues(name).Inc()
}

// CacheEvict implements cache.Observer.
func (m *Metrics) CacheEvict(name, reason string) {
	m.CacheEvictionsTotal.WithLabelValues(name, reason).Inc()
}

// CacheSize implements cache.Observer.
func (m *Metrics) CacheSize(name string, entries int, bytes int64) {
	m.CacheEntries.WithLabelValues(name).Set(float64(entries))
	m.CacheSizeBytes.WithLabelValues(name).Set(float64(bytes))
}

// PluginLoaded implements plugins.Recorder.
func (m *Metrics) PluginLoaded(pluginID string, duration time.Duration, err error) {
	m.PluginLoadsTotal.WithLabelValues(pluginID, status(err)).Inc()
	m.PluginLoadDuration.WithLabelValues(pluginID).Observe(duration.Seconds())
}

// CommandExecuted implements plugins.Recorder.
func (m *Metrics) CommandExecuted(pluginID, _ string, duration time.Duration, err error) {
	m.CommandsTotal.WithLabelValues(pluginID, status(err)).Inc()
	m.CommandDuration.WithLabelValues(pluginID).Observe(duration.Seconds())
}

// EventDispatched implements plugins.Recorder.
func (m *Metrics) EventDispatched(pluginID string, err error) {
	m.ViewEventsTotal.WithLabelValues(pluginID, status(err)).Inc()
}

// WorkersActive implements plugins.Recorder.
func (m *Metrics) WorkersActive(n int) {
	m.ActiveWorkers.Set(float64(n))
}

// PackageRejected counts a package that failed to install through channel
// (api, watcher, cli).
func (m *Metrics) PackageRejected(channel string) {
	m.PackagesRejected.WithLabelValues(channel).Inc()
}

// SetInstalled records the number of installed plugins.
func (m *Metrics) SetInstalled(n int) {
	m.PluginsInstalled.Set(float64(n))
}

// ObserveMemory records a memory monitor sample.
func (m *Metrics) ObserveMemory(sample cache.MemorySample) {
	m.MemoryUsedBytes.Set(float64(sample.Used))
	m.MemoryLimitBytes.Set(float64(sample.Limit))
	m.MemoryUtilization.Set(sample.Utilization)
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routeLabel returns the matched mux route template, keeping label
// cardinality bounded by the route table.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
