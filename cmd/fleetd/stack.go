package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/fleet/pkg/async"
	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/config"
	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
	"github.com/platinummonkey/fleet/pkg/storage"
)

// loadConfig resolves the configuration, honouring the persistent --config
// and --log-level flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("FLEET_CONFIG_FILE", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Observability.LogLevel = level
	}
	return cfg, nil
}

// pluginStack is the plugin runtime shared by every subcommand.
type pluginStack struct {
	kv      storage.KV
	store   *storage.PackageStore
	manager *plugins.Manager
	loader  *plugins.Loader
}

type stackOptions struct {
	persist   bool // store installed packages under the package dir
	recorder  plugins.Recorder
	observers []cache.Option
	monitor   *cache.Monitor
}

func newPluginStack(cfg *config.Config, log *logrus.Logger, opts stackOptions) (*pluginStack, error) {
	kv, err := storage.NewKV(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	rt := &pluginStack{kv: kv}
	if opts.persist {
		if rt.store, err = storage.NewPackageStore(cfg.Storage.FilesystemRoot); err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("failed to initialize package store: %w", err)
		}
	}

	clipboard := capability.ClipboardBackend(&capability.MemoryClipboard{})
	if capability.SystemClipboardAvailable() {
		clipboard = capability.SystemClipboard{}
	}

	rt.manager = plugins.NewManager(plugins.Config{
		MaxWorkers:     cfg.Plugins.MaxWorkers,
		CommandTimeout: cfg.Plugins.CommandTimeout,
		CallTimeout:    cfg.Plugins.CallTimeout,
		IdleTimeout:    cfg.Plugins.IdleTimeout,
		Caches:         plugins.NewCaches(cfg.Plugins.CacheConfig(), opts.observers...),
		Capabilities: capability.ServiceConfig{
			KV:          kv,
			Clipboard:   clipboard,
			HostVersion: cfg.Plugins.HostVersion,
			Theme:       cfg.Plugins.Theme,
		},
		Monitor:  opts.monitor,
		Recorder: opts.recorder,
		Logger:   log,
	})

	rt.loader = plugins.NewLoader(plugins.LoaderConfig{
		MaxArchiveSize:  cfg.Plugins.MaxArchiveSize,
		StrictIntegrity: cfg.Plugins.StrictIntegrity,
		HostVersion:     cfg.Plugins.HostVersion,
		RestoreWorkers:  cfg.Plugins.RestoreWorkers,
		Store:           rt.store,
	}, rt.manager, log)

	return rt, nil
}

func (rt *pluginStack) close(ctx context.Context) error {
	err := rt.manager.Shutdown(ctx)
	if cerr := rt.kv.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func runtimeLogger(cfg *config.Config) *logrus.Logger {
	log := observability.NewRuntimeLogger(cfg.Observability.Level(), os.Stderr)
	async.SetLogger(log)
	return log
}
