package plugins

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const todoManifest = `{
  "name": "todo",
  "title": "Todo",
  "version": "1.2.0",
  "description": "Tracks todos",
  "author": "Ada",
  "commands": [
    {"name": "list", "title": "List Todos"},
    {"name": "sync", "mode": "no-view"}
  ]
}`

const todoSource = `
import { List, createElement, showToast } from "@fleet-chat/api";

export default function Command() {
  return createElement(List, {},
    createElement(List.Item, { title: "Buy milk" }));
}

export async function sync() {
  await showToast({ title: "Synced" });
  return "done";
}
`

func packageFiles(overrides map[string]string) map[string][]byte {
	files := map[string][]byte{
		ManifestFile:      []byte(todoManifest),
		"index.js":        []byte(todoSource),
		"assets/icon.png": {0x89, 'P', 'N', 'G'},
	}
	for name, data := range overrides {
		if data == "" {
			delete(files, name)
			continue
		}
		files[name] = []byte(data)
	}
	return files
}

func buildPackage(t *testing.T, overrides map[string]string) []byte {
	t.Helper()
	archive, err := EncodePackage(packageFiles(overrides))
	require.NoError(t, err)
	return archive
}

// TestDecodePackage tests splitting a package into manifest, code and assets
func TestDecodePackage(t *testing.T) {
	archive := buildPackage(t, nil)

	pkg, warnings, err := DecodePackage(archive, 0)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ManifestFile, pkg.ManifestFile)
	assert.Equal(t, "todo", pkg.Manifest.Name)
	assert.Contains(t, pkg.Code, "index.js")
	assert.Contains(t, pkg.Assets, "assets/icon.png")
	assert.NotContains(t, pkg.Assets, ManifestFile)
	assert.Equal(t, Checksum(archive), pkg.Checksum)
	assert.Nil(t, pkg.Metadata)
}

// TestDecodePackage_Corrupt tests rejecting bytes that are not a zip archive
func TestDecodePackage_Corrupt(t *testing.T) {
	_, _, err := DecodePackage([]byte("definitely not a zip"), 0)
	assert.True(t, errors.Is(err, ErrCorruptArchive))
}

// TestDecodePackage_MissingManifest tests an archive without any manifest
func TestDecodePackage_MissingManifest(t *testing.T) {
	archive := buildPackage(t, map[string]string{ManifestFile: ""})
	_, _, err := DecodePackage(archive, 0)
	assert.True(t, errors.Is(err, ErrMissingManifest))
}

// TestDecodePackage_ManifestFallbacks tests the legacy and YAML manifest names
func TestDecodePackage_ManifestFallbacks(t *testing.T) {
	archive := buildPackage(t, map[string]string{ManifestFile: "", LegacyManifestFile: todoManifest})
	pkg, _, err := DecodePackage(archive, 0)
	require.NoError(t, err)
	assert.Equal(t, LegacyManifestFile, pkg.ManifestFile)

	archive = buildPackage(t, map[string]string{
		ManifestFile:     "",
		YAMLManifestFile: "name: todo\nversion: 1.0.0\ndescription: d\nauthor: Ada\n",
	})
	pkg, _, err = DecodePackage(archive, 0)
	require.NoError(t, err)
	assert.Equal(t, YAMLManifestFile, pkg.ManifestFile)
}

// TestDecodePackage_InvalidManifest tests unparsable and incomplete manifests
func TestDecodePackage_InvalidManifest(t *testing.T) {
	_, _, err := DecodePackage(buildPackage(t, map[string]string{ManifestFile: "{"}), 0)
	assert.True(t, errors.Is(err, ErrInvalidManifest))

	_, _, err = DecodePackage(buildPackage(t, map[string]string{ManifestFile: `{"name":"todo"}`}), 0)
	require.Error(t, err)
	var invalid *InvalidManifestError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"version", "description", "author"}, invalid.Missing)
}

// TestDecodePackage_SizeLimit tests the uncompressed size limit
func TestDecodePackage_SizeLimit(t *testing.T) {
	archive := buildPackage(t, map[string]string{"big.txt": strings.Repeat("x", 4096)})
	_, _, err := DecodePackage(archive, 1024)
	assert.True(t, errors.Is(err, ErrArchiveTooLarge))

	_, _, err = DecodePackage(archive, 1<<20)
	assert.NoError(t, err)
}

// TestDecodePackage_UnsafePaths tests that traversal entries are skipped with a warning
func TestDecodePackage_UnsafePaths(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string]string{
		ManifestFile:       todoManifest,
		"index.js":         todoSource,
		"../../etc/passwd": "root",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	pkg, warnings, err := DecodePackage(buf.Bytes(), 0)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnUnsafePath, warnings[0].Code)
	assert.Equal(t, "../../etc/passwd", warnings[0].File)
	assert.Len(t, pkg.Assets, 0)
}

// TestDecodePackage_CommonRoot tests unwrapping a single top-level folder
func TestDecodePackage_CommonRoot(t *testing.T) {
	archive, err := EncodePackage(map[string][]byte{
		"todo/" + ManifestFile: []byte(todoManifest),
		"todo/src/index.js":    []byte(todoSource),
	})
	require.NoError(t, err)

	pkg, _, err := DecodePackage(archive, 0)
	require.NoError(t, err)
	assert.Equal(t, ManifestFile, pkg.ManifestFile)
	assert.Contains(t, pkg.Code, "src/index.js")
}

// TestDecodePackage_Metadata tests metadata.json parsing and its version aliases
func TestDecodePackage_Metadata(t *testing.T) {
	pkg, warnings, err := DecodePackage(buildPackage(t, map[string]string{
		MetadataFile: `{"checksum":"abc","buildTime":"2024-01-01T00:00:00Z","minHostVersion":"1.4.0"}`,
	}), 0)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.NotNil(t, pkg.Metadata)
	assert.Equal(t, "abc", pkg.Metadata.Checksum)
	assert.Equal(t, "1.4.0", pkg.Metadata.HostVersion)
	assert.NotContains(t, pkg.Assets, MetadataFile)

	pkg, _, err = DecodePackage(buildPackage(t, map[string]string{
		MetadataFile: `{"fleetChatVersion":"2.0.0","compatibleVersion":"1.0.0"}`,
	}), 0)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", pkg.Metadata.HostVersion)

	pkg, warnings, err = DecodePackage(buildPackage(t, map[string]string{MetadataFile: "{oops"}), 0)
	require.NoError(t, err)
	assert.Nil(t, pkg.Metadata)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnMalformedMetadata, warnings[0].Code)
}

// TestSafePath tests entry name normalization
func TestSafePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"index.js", "index.js", true},
		{"src/./lib.js", "src/lib.js", true},
		{`src\win.js`, "src/win.js", true},
		{"/abs.js", "", false},
		{"C:/x.js", "", false},
		{"a/../../b", "", false},
		{".", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := safePath(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
