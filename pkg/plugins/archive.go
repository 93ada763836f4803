package plugins

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// DefaultMaxArchiveSize bounds the total uncompressed size of a package.
const DefaultMaxArchiveSize = 64 << 20

var sourceExtensions = map[string]bool{".js": true, ".mjs": true, ".cjs": true, ".ts": true, ".jsx": true, ".tsx": true}

// Checksum returns the sha256 hex digest of archive.
func Checksum(archive []byte) string {
	sum := sha256.Sum256(archive)
	return hex.EncodeToString(sum[:])
}

// DecodePackage reads a zipped package. Structural problems are errors;
// entries with unsafe paths are skipped and reported as warnings.
func DecodePackage(archive []byte, maxSize int64) (*PluginPackage, []Warning, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxArchiveSize
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	files := make(map[string][]byte)
	var (
		warnings []Warning
		total    int64
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := safePath(f.Name)
		if !ok {
			warnings = append(warnings, Warning{Code: WarnUnsafePath, Message: "skipped entry outside the package", File: f.Name})
			continue
		}

		data, err := readEntry(f, maxSize-total)
		if err != nil {
			return nil, nil, err
		}
		total += int64(len(data))
		files[name] = data
	}

	files = stripCommonRoot(files)

	manifest, manifestFile, err := findManifest(files)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateManifest(manifest); err != nil {
		return nil, nil, err
	}

	pkg := &PluginPackage{
		Manifest:     manifest,
		ManifestFile: manifestFile,
		Code:         make(map[string]string),
		Assets:       make(map[string][]byte),
		Checksum:     Checksum(archive),
		Size:         total,
	}

	for name, data := range files {
		switch {
		case name == manifestFile:
		case name == MetadataFile:
			var meta PackageMetadata
			if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &meta); err != nil {
				warnings = append(warnings, Warning{Code: WarnMalformedMetadata, Message: err.Error(), File: name})
				continue
			}
			pkg.Metadata = &meta
		case sourceExtensions[path.Ext(name)]:
			pkg.Code[name] = string(data)
		default:
			pkg.Assets[name] = data
		}
	}

	return pkg, warnings, nil
}

func readEntry(f *zip.File, remaining int64) ([]byte, error) {
	if int64(f.UncompressedSize64) > remaining {
		return nil, fmt.Errorf("%w: %s", ErrArchiveTooLarge, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
	}
	defer rc.Close()

	// the header size is not trusted
	data, err := io.ReadAll(io.LimitReader(rc, remaining+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
	}
	if int64(len(data)) > remaining {
		return nil, fmt.Errorf("%w: %s", ErrArchiveTooLarge, f.Name)
	}
	return data, nil
}

// safePath normalizes an entry name, rejecting absolute paths and parent
// traversal.
func safePath(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || strings.Contains(name, ":") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." || clean == "" {
		return "", false
	}
	return clean, true
}

// stripCommonRoot removes a single top-level directory that wraps every
// entry, as produced by zipping a folder.
func stripCommonRoot(files map[string][]byte) map[string][]byte {
	var root string
	for name := range files {
		dir, _, ok := strings.Cut(name, "/")
		if !ok {
			return files
		}
		if root == "" {
			root = dir
		} else if dir != root {
			return files
		}
	}
	if root == "" {
		return files
	}

	stripped := make(map[string][]byte, len(files))
	for name, data := range files {
		stripped[strings.TrimPrefix(name, root+"/")] = data
	}
	return stripped
}

func findManifest(files map[string][]byte) (*Manifest, string, error) {
	for _, name := range manifestFiles {
		data, ok := files[name]
		if !ok {
			continue
		}
		manifest, err := ParseManifest(name, data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		return manifest, name, nil
	}
	return nil, "", ErrMissingManifest
}

// EncodePackage zips files into a package archive. It is used by tests and
// the CLI to build packages from a directory.
func EncodePackage(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
