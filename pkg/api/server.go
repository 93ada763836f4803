package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/fleet/pkg/httputil"
	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
)

// DefaultMaxUploadSize bounds the body of an install request.
const DefaultMaxUploadSize = plugins.DefaultMaxArchiveSize

// maxJSONBody bounds command arguments and UI event payloads.
const maxJSONBody = 1 << 20

// Options configures a Server. Manager and Loader are required.
type Options struct {
	Manager *plugins.Manager
	Loader  *plugins.Loader

	Metrics  *observability.Metrics       // optional
	Registry *prometheus.Registry         // served on /metrics when set
	Health   *observability.HealthChecker // served on /health/* when set
	Logger   *observability.Logger

	MaxUploadSize  int64
	AllowedOrigins []string
	PingInterval   time.Duration // websocket keepalive
}

// Server exposes the plugin runtime over HTTP.
type Server struct {
	manager  *plugins.Manager
	loader   *plugins.Loader
	metrics  *observability.Metrics
	logger   *observability.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	opts     Options
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	s := &Server{
		manager: opts.Manager,
		loader:  opts.Loader,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		router:  mux.NewRouter(),
		opts:    opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.Use(s.contextLogger)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	limit := httputil.MaxBytesMiddleware(maxJSONBody)

	// Plugin routes
	v1.HandleFunc("/plugins", s.installPlugin).Methods("POST")
	v1.HandleFunc("/plugins", s.listPlugins).Methods("GET")
	v1.HandleFunc("/plugins/{id}", s.getPlugin).Methods("GET")
	v1.HandleFunc("/plugins/{id}", s.uninstallPlugin).Methods("DELETE")
	v1.HandleFunc("/plugins/{id}/reload", s.reloadPlugin).Methods("POST")

	// Command routes
	v1.HandleFunc("/commands", s.listCommands).Methods("GET")
	v1.Handle("/plugins/{id}/commands/{command}", limit(http.HandlerFunc(s.executeCommand))).Methods("POST")
	v1.HandleFunc("/plugins/{id}/commands/{command}/view", s.getView).Methods("GET")

	// UI event forwarding
	v1.Handle("/plugins/{id}/roots/{root}/events", limit(http.HandlerFunc(s.dispatchEvent))).Methods("POST")

	// Assets
	v1.HandleFunc("/plugins/{id}/assets/{path:.+}", s.getAsset).Methods("GET")

	// Runtime state
	v1.HandleFunc("/cache/stats", s.cacheStats).Methods("GET")
	v1.HandleFunc("/memory", s.memory).Methods("GET")

	// Event stream
	v1.HandleFunc("/events", s.streamEvents).Methods("GET")

	if s.opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.opts.Registry)).Methods("GET")
	}
	if s.opts.Health != nil {
		s.router.HandleFunc("/health/live", s.opts.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.opts.Health.Readiness).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in tracing, request ids, logging, panic
// recovery and CORS.
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		observability.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
	)
	var h http.Handler = chain(s.router)
	if len(s.opts.AllowedOrigins) > 0 {
		h = httputil.CORSMiddleware(s.opts.AllowedOrigins)(h)
	}
	return otelhttp.NewHandler(h, "fleetd")
}

// contextLogger stores the server logger and the addressed plugin in the
// request context.
func (s *Server) contextLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithLogger(r.Context(), s.logger)
		if id := mux.Vars(r)["id"]; id != "" {
			ctx = observability.WithPluginID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return httputil.OriginAllowed(s.opts.AllowedOrigins, origin)
}
