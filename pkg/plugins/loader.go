package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fleet/pkg/async"
	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/storage"
)

// DefaultHostVersion is the launcher version packages are checked against.
const DefaultHostVersion = "1.0.0"

// LoaderConfig configures a Loader
type LoaderConfig struct {
	MaxArchiveSize  int64
	StrictIntegrity bool // checksum and host-version findings become errors
	HostVersion     string
	RestoreWorkers  int
	Store           *storage.PackageStore // optional; installed archives are persisted here
}

// Loader decodes package archives, validates them and registers them with a
// Manager.
type Loader struct {
	cfg       LoaderConfig
	manager   *Manager
	validator *Validator
	log       *logrus.Logger
}

// NewLoader creates a new package loader
func NewLoader(config LoaderConfig, manager *Manager, log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}
	if config.HostVersion == "" {
		config.HostVersion = DefaultHostVersion
	}
	if config.RestoreWorkers <= 0 {
		config.RestoreWorkers = 4
	}

	return &Loader{
		cfg:       config,
		manager:   manager,
		validator: NewValidator(log),
		log:       log,
	}
}

// Load installs a package archive. Structural problems fail the install
// without registering anything; integrity findings are returned as warnings
// unless StrictIntegrity is set.
func (l *Loader) Load(ctx context.Context, archive []byte, source string) (*InstalledPlugin, error) {
	return l.load(ctx, archive, source, true)
}

// LoadFile installs the package at path, using the file name as source label.
func (l *Loader) LoadFile(ctx context.Context, path string) (*InstalledPlugin, error) {
	archive, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}
	return l.Load(ctx, archive, filepath.Base(path))
}

func (l *Loader) load(ctx context.Context, archive []byte, source string, persist bool) (*InstalledPlugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	pkg, warnings, err := DecodePackage(archive, l.cfg.MaxArchiveSize)
	if err != nil {
		l.log.WithField("source", source).WithError(err).Warn("Rejected package")
		return nil, err
	}

	id := PluginID(pkg.Manifest)
	if !IsValidName(id) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidManifest, pkg.Manifest.Name)
	}

	integrity, err := l.checkIntegrity(pkg)
	if err != nil {
		l.log.WithField("plugin", id).WithError(err).Warn("Rejected package")
		return nil, err
	}
	warnings = append(warnings, integrity...)
	warnings = append(warnings, l.validator.Validate(pkg)...)

	if persist && l.cfg.Store != nil {
		record := storage.PackageRecord{
			Name:        id,
			Version:     pkg.Manifest.Version,
			Source:      source,
			Checksum:    pkg.Checksum,
			Size:        int64(len(archive)),
			InstalledAt: time.Now().UTC(),
		}
		if err := l.cfg.Store.Save(record, archive); err != nil {
			return nil, fmt.Errorf("failed to store package: %w", err)
		}
	}

	plugin, err := l.manager.RegisterPlugin(pkg, source, warnings)
	if err != nil {
		return nil, err
	}
	l.warmCaches(id, pkg)

	log := l.log.WithFields(logrus.Fields{"plugin": id, "version": pkg.Manifest.Version, "duration": time.Since(start)})
	for _, w := range warnings {
		log.Warnf("Package warning: %s", w)
	}
	log.Infof("Installed %s with %d commands", id, len(pkg.Manifest.Commands))
	return plugin, nil
}

func (l *Loader) checkIntegrity(pkg *PluginPackage) ([]Warning, error) {
	meta := pkg.Metadata
	if meta == nil {
		return nil, nil
	}

	var warnings []Warning
	if meta.Checksum != "" && !strings.EqualFold(meta.Checksum, pkg.Checksum) {
		if l.cfg.StrictIntegrity {
			return nil, fmt.Errorf("%w: metadata has %s, archive is %s", ErrChecksumMismatch, meta.Checksum, pkg.Checksum)
		}
		warnings = append(warnings, Warning{
			Code:    WarnChecksumMismatch,
			Message: fmt.Sprintf("metadata checksum %s does not match archive %s", meta.Checksum, pkg.Checksum),
			File:    MetadataFile,
		})
	}

	if meta.HostVersion != "" && CompareVersions(meta.HostVersion, l.cfg.HostVersion) > 0 {
		if l.cfg.StrictIntegrity {
			return nil, fmt.Errorf("%w: requires %s, host is %s", ErrIncompatibleVersion, meta.HostVersion, l.cfg.HostVersion)
		}
		warnings = append(warnings, Warning{
			Code:    WarnIncompatibleVersion,
			Message: fmt.Sprintf("built for host %s, running %s", meta.HostVersion, l.cfg.HostVersion),
			File:    MetadataFile,
		})
	}
	return warnings, nil
}

func (l *Loader) warmCaches(id string, pkg *PluginPackage) {
	caches := l.manager.Caches()
	if err := caches.Metadata.Set(id, pkg); err != nil {
		l.log.WithField("plugin", id).Debugf("Metadata not cached: %v", err)
	}
	for name, data := range pkg.Assets {
		if err := caches.Assets.Set(cacheKey(id, name), data, cache.WithSize(int64(len(data)))); err != nil {
			l.log.WithField("plugin", id).Debugf("Asset %s not cached: %v", name, err)
		}
	}
}

// Uninstall unregisters a plugin and deletes its stored archive.
func (l *Loader) Uninstall(ctx context.Context, name string) error {
	if err := l.manager.UnregisterPlugin(ctx, name); err != nil {
		return err
	}
	if l.cfg.Store != nil {
		if err := l.cfg.Store.Delete(name); err != nil && !errors.Is(err, storage.ErrPackageNotFound) {
			return fmt.Errorf("failed to delete stored package: %w", err)
		}
	}
	return nil
}

// Restore reinstalls every archive in the package store. It returns the
// number restored and the errors of those that failed.
func (l *Loader) Restore(ctx context.Context) (int, []error) {
	if l.cfg.Store == nil {
		return 0, nil
	}

	records, err := l.cfg.Store.List()
	if err != nil {
		return 0, []error{fmt.Errorf("failed to list stored packages: %w", err)}
	}

	errs := async.Batch(ctx, records, l.cfg.RestoreWorkers, "restore package", time.Minute,
		func(ctx context.Context, record storage.PackageRecord) error {
			archive, _, err := l.cfg.Store.Load(record.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", record.Name, err)
			}
			if sum := Checksum(archive); record.Checksum != "" && sum != record.Checksum {
				l.log.WithField("plugin", record.Name).Warnf("%s: stored archive changed since install", WarnRestoreChecksumDrift)
			}
			if _, err := l.load(ctx, archive, record.Source, false); err != nil {
				return fmt.Errorf("%s: %w", record.Name, err)
			}
			return nil
		})

	restored := len(records) - len(errs)
	l.log.Infof("Restored %d of %d stored packages", restored, len(records))
	return restored, errs
}
