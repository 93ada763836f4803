// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health probes and graceful shutdown
// for fleetd.
//
// # Logging
//
// Server code logs through the slog-backed Logger:
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("plugin", id).Info("Plugin installed")
//
// The runtime packages (plugins, worker, capability) take a *logrus.Logger;
// NewRuntimeLogger builds one at the same level.
//
// # Metrics
//
// Metrics satisfies both cache.Observer and plugins.Recorder, so a single
// value feeds cache, command and worker activity into a private registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// OTelMetrics records the same activity as OpenTelemetry instruments. Use
// Recorders and Observers to fan out to both.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("kv", true, kv.HealthCheck)
//	router.HandleFunc("/health/ready", checker.Readiness)
//
// # Shutdown
//
// ShutdownManager runs registered stages in order under one deadline:
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.Register("API server", srv.Shutdown)
//	sm.Register("plugins", manager.Shutdown)
//	return sm.Wait(ctx) // returns after ctx is cancelled and every stage ran
package observability
