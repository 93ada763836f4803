package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/fleet/pkg/api"
	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/config"
	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
	"github.com/platinummonkey/fleet/pkg/watcher"
)

func newServeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin runtime and its HTTP API",
		Long: `Serve restores previously installed plugins, starts the HTTP API, the
health and metrics endpoints, the maintenance schedule and, when
FLEET_WATCH_DIR is set, the drop-directory watcher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, version)
		},
	}
	return cmd
}

func serve(signals context.Context, cfg *config.Config, version string) error {
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	log := runtimeLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Observability.OTelServiceVersion == "" {
		cfg.Observability.OTelServiceVersion = version
	}
	otelCfg := cfg.Observability.OTel()
	otelCfg.Attributes = map[string]string{"fleet.host_version": cfg.Plugins.HostVersion}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var (
		registry  *prometheus.Registry
		metrics   *observability.Metrics
		recorders observability.Recorders
		observers observability.Observers
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		recorders = append(recorders, metrics)
		observers = append(observers, metrics)
	}
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		recorders = append(recorders, otelMetrics)
		observers = append(observers, otelMetrics)
	}

	stack, err := newPluginStack(cfg, log, stackOptions{
		persist:   true,
		recorder:  recorders,
		observers: []cache.Option{cache.WithObserver(observers)},
		monitor:   cache.NewMonitor(cache.DefaultMonitorConfig(), nil),
	})
	if err != nil {
		return err
	}

	installedChanged := func() {
		if metrics != nil {
			metrics.SetInstalled(len(stack.manager.Plugins()))
		}
	}

	restored, errs := stack.loader.Restore(ctx)
	for _, err := range errs {
		logger.WithError(err).Warn("Failed to restore package")
	}
	logger.Infof("Restored %d plugins from %s", restored, cfg.Storage.FilesystemRoot)
	installedChanged()

	maintenance, err := plugins.NewMaintenance(stack.manager, cfg.Plugins.MaintenanceSchedule, log)
	if err != nil {
		return err
	}
	if metrics != nil {
		maintenance.OnReport(func(report plugins.OptimizeReport) {
			metrics.ObserveMemory(report.Sample)
		})
	}
	maintenance.Start()

	health := observability.NewHealthChecker(version)
	health.AddCheck("storage", true, stack.kv.HealthCheck)
	health.AddCheck("memory", false, func(context.Context) error {
		if stack.manager.Monitor().IsCritical() {
			return errors.New("memory utilization is critical")
		}
		return nil
	})

	server := api.NewServer(api.Options{
		Manager:       stack.manager,
		Loader:        stack.loader,
		Metrics:       metrics,
		Registry:      registry,
		Health:        health,
		Logger:        logger,
		MaxUploadSize: cfg.Plugins.MaxArchiveSize,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics on their own port
	probes := mux.NewRouter()
	probes.HandleFunc("/health/live", health.Liveness).Methods("GET")
	probes.HandleFunc("/health/ready", health.Readiness).Methods("GET")
	if registry != nil {
		probes.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: probes,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("API server", httpServer.Shutdown)
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("maintenance", func(ctx context.Context) error {
		select {
		case <-maintenance.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("plugins", func(ctx context.Context) error {
		cancel()
		return stack.close(ctx)
	})
	if providers != nil {
		shutdown.Register("opentelemetry", func(ctx context.Context) error {
			return providers.Shutdown(ctx, logger)
		})
	}

	serveErr := make(chan error, 3)
	listen := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.Infof("Starting %s on %s", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%s: %w", name, err)
		}
	}
	go listen("API server", httpServer)
	go listen("health server", healthServer)

	if cfg.Plugins.WatchDir != "" {
		w, err := watcher.New(watcher.Options{
			Dir:       cfg.Plugins.WatchDir,
			Scan:      true,
			Installer: stack.loader,
			Metrics:   metrics,
			Logger:    logger,
			OnInstall: func(string, *plugins.InstalledPlugin, error) { installedChanged() },
		})
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				serveErr <- fmt.Errorf("watcher: %w", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- shutdown.Wait(signals) }()

	select {
	case err := <-serveErr:
		logger.WithError(err).Error("Server failed")
		if serr := shutdown.Shutdown(); serr != nil {
			logger.WithError(serr).Error("Shutdown failed")
		}
		return err
	case err := <-done:
		return err
	}
}
