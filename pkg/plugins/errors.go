package plugins

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorruptArchive is returned when a package is not a readable zip archive
	ErrCorruptArchive = errors.New("corrupt package archive")

	// ErrMissingManifest is returned when a package contains no manifest
	ErrMissingManifest = errors.New("package has no manifest")

	// ErrInvalidManifest is returned when a manifest lacks required fields
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrChecksumMismatch is reported when metadata.json's checksum does not
	// match the archive. It is a warning unless integrity is strict.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrIncompatibleVersion is reported when a package targets a newer host.
	// It is a warning unless integrity is strict.
	ErrIncompatibleVersion = errors.New("incompatible host version")

	// ErrArchiveTooLarge is returned when a package expands beyond the size limit
	ErrArchiveTooLarge = errors.New("package archive too large")

	// ErrNotInstalled is returned for operations on unknown plugins
	ErrNotInstalled = errors.New("plugin not installed")

	// ErrShuttingDown is returned once the manager has been shut down
	ErrShuttingDown = errors.New("plugin manager is shutting down")
)

// InvalidManifestError lists every required field a manifest is missing.
type InvalidManifestError struct {
	Missing []string
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid manifest: missing %s", strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrInvalidManifest) match.
func (e *InvalidManifestError) Is(target error) bool {
	return target == ErrInvalidManifest
}

// Warning is a non-fatal finding recorded while loading a package.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Warning codes
const (
	WarnChecksumMismatch     = "ChecksumMismatch"
	WarnIncompatibleVersion  = "IncompatibleVersion"
	WarnMalformedMetadata    = "MalformedMetadata"
	WarnUnknownPermission    = "UnknownPermission"
	WarnSuspiciousCode       = "SuspiciousCode"
	WarnUnsafePath           = "UnsafePath"
	WarnDuplicateCommand     = "DuplicateCommand"
	WarnRestoreChecksumDrift = "RestoreChecksumDrift"
)

func (w Warning) String() string {
	if w.File != "" {
		return fmt.Sprintf("%s: %s (%s)", w.Code, w.Message, w.File)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}
