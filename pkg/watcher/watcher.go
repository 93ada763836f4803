package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
)

// DefaultDelay is how long a file must stay quiet before it is installed.
const DefaultDelay = 500 * time.Millisecond

// DefaultExtensions are the package file extensions the watcher installs.
var DefaultExtensions = []string{".fcp", ".zip"}

// Installer installs a package file. *plugins.Loader implements it.
type Installer interface {
	LoadFile(ctx context.Context, path string) (*plugins.InstalledPlugin, error)
}

// Options configures a Watcher.
type Options struct {
	Dir        string
	Delay      time.Duration
	Extensions []string
	Scan       bool // install packages already in Dir on start

	Installer Installer
	Metrics   *observability.Metrics
	Logger    *observability.Logger

	// OnInstall is called after every install attempt.
	OnInstall func(path string, plugin *plugins.InstalledPlugin, err error)
}

// Watcher installs package files dropped into a directory.
type Watcher struct {
	opts Options
	log  *observability.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new watcher
func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if opts.Installer == nil {
		return nil, errors.New("installer is required")
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Watcher{
		opts:    opts,
		log:     opts.Logger.WithField("dir", opts.Dir),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches the directory until ctx is cancelled. Pending installs are
// abandoned on return; installs already running are waited for.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.opts.Dir, err)
	}
	defer w.stop()

	if w.opts.Scan {
		w.scan(ctx)
	}

	w.log.Info("Watching for plugin packages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && w.matches(event.Name) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

// scan queues the packages already present in the directory.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		w.log.WithError(err).Warn("Failed to scan watch directory")
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && w.matches(entry.Name()) {
			w.schedule(ctx, filepath.Join(w.opts.Dir, entry.Name()))
		}
	}
}

func (w *Watcher) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// schedule installs path once it has been quiet for the configured delay.
// Copies into the directory emit several writes; each one restarts the timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.install(ctx, path)
	})
}

func (w *Watcher) install(ctx context.Context, path string) {
	log := w.log.WithField("file", filepath.Base(path))
	defer observability.RecoverPanic(log, "package install")

	if ctx.Err() != nil {
		return
	}

	plugin, err := w.opts.Installer.LoadFile(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Failed to install dropped package")
		if w.opts.Metrics != nil {
			w.opts.Metrics.PackageRejected("watcher")
		}
	} else {
		log.WithField("plugin_id", plugin.ID).Info("Installed dropped package")
	}

	if w.opts.OnInstall != nil {
		w.opts.OnInstall(path, plugin, err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
