package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fleet/pkg/cache"
)

// TestMetrics_Recorder tests the plugins.Recorder methods
func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.PluginLoaded("todo", 30*time.Millisecond, nil)
	m.PluginLoaded("todo", time.Millisecond, errors.New("syntax"))
	m.CommandExecuted("todo", "list", 5*time.Millisecond, nil)
	m.EventDispatched("todo", nil)
	m.WorkersActive(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("todo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginLoadsTotal.WithLabelValues("todo", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("todo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewEventsTotal.WithLabelValues("todo", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveWorkers))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandDuration))
}

// TestMetrics_CacheObserver tests cache activity flowing into the metrics
func TestMetrics_CacheObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	store := cache.New[string](cache.Config{Name: "asset", MaxEntries: 1, MaxSize: 1 << 10}, cache.WithObserver(m))
	require.NoError(t, store.Set("a", "1"))
	_, _ = store.Get("a")
	_, _ = store.Get("missing")
	require.NoError(t, store.Set("b", "2"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("asset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("asset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEntries.WithLabelValues("asset")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CacheEvictionsTotal))
}

// TestMetrics_ObserveMemory tests the memory gauges
func TestMetrics_ObserveMemory(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveMemory(cache.MemorySample{Used: 50, Limit: 200, Utilization: 0.25})

	assert.Equal(t, 50.0, testutil.ToFloat64(m.MemoryUsedBytes))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.MemoryLimitBytes))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.MemoryUtilization))
}

// TestMetrics_Packages tests install bookkeeping
func TestMetrics_Packages(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.PackageRejected("watcher")
	m.PackageRejected("watcher")
	m.SetInstalled(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PackagesRejected.WithLabelValues("watcher")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PluginsInstalled))
}

// TestHTTPMetricsMiddleware tests that requests are labelled by route template
func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/plugins/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})

	for _, id := range []string{"todo", "notes"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plugins/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	expected := `
# HELP fleet_http_requests_total Total number of HTTP requests
# TYPE fleet_http_requests_total counter
fleet_http_requests_total{method="GET",route="/api/v1/plugins/{id}",status="404"} 2
`
	assert.NoError(t, testutil.CollectAndCompare(m.HTTPRequestsTotal, strings.NewReader(expected)))

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "fleet_http_request_duration_seconds")
}
