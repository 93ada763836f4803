package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	archiveFile = "package.fcp"
	recordFile  = "package.json"
)

// PackageRecord describes a stored package archive
type PackageRecord struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	InstalledAt time.Time `json:"installedAt"`
}

// PackageStore keeps installed package archives on the local filesystem,
// one directory per package.
type PackageStore struct {
	rootDir string
}

// NewPackageStore creates a new filesystem-based package store
func NewPackageStore(rootDir string) (*PackageStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &PackageStore{rootDir: rootDir}, nil
}

// Root returns the store's root directory
func (s *PackageStore) Root() string {
	return s.rootDir
}

func (s *PackageStore) dir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.rootDir, name), nil
}

// Save writes the archive and its record, replacing any previous version.
func (s *PackageStore) Save(record PackageRecord, archive []byte) error {
	dir, err := s.dir(record.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create package directory: %w", err)
	}

	record.Size = int64(len(archive))
	if err := os.WriteFile(filepath.Join(dir, archiveFile), archive, 0644); err != nil {
		return fmt.Errorf("failed to write package archive: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal package record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, recordFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write package record: %w", err)
	}

	return nil
}

// Load returns a stored archive and its record.
func (s *PackageStore) Load(name string) ([]byte, *PackageRecord, error) {
	record, err := s.Record(name)
	if err != nil {
		return nil, nil, err
	}

	dir, _ := s.dir(name)
	archive, err := os.ReadFile(filepath.Join(dir, archiveFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to read package archive: %w", err)
	}
	return archive, record, nil
}

// Record returns the stored record for name.
func (s *PackageStore) Record(name string) (*PackageRecord, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
		}
		return nil, fmt.Errorf("failed to read package record: %w", err)
	}

	var record PackageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal package record: %w", err)
	}
	return &record, nil
}

// List returns every stored record sorted by name. Directories without a
// readable record are skipped.
func (s *PackageStore) List() ([]PackageRecord, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var records []PackageRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := s.Record(entry.Name())
		if err != nil {
			continue
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Delete removes a stored package.
func (s *PackageStore) Delete(name string) error {
	dir, err := s.dir(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	return nil
}
