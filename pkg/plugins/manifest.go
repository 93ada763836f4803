package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order.
const (
	ManifestFile       = "plugin.json"
	LegacyManifestFile = "manifest.json"
	YAMLManifestFile   = "plugin.yaml"
	MetadataFile       = "metadata.json"
)

var manifestFiles = []string{ManifestFile, LegacyManifestFile, YAMLManifestFile}

var (
	semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
	nameRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseManifest decodes a manifest file. YAML is used for .yaml and .yml
// names, JSON otherwise. The result is not validated.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var manifest Manifest
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return &manifest, nil
	}

	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return &manifest, nil
}

// MarshalManifest encodes a manifest in the format implied by name.
func MarshalManifest(name string, manifest *Manifest) ([]byte, error) {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		data, err := yaml.Marshal(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		return data, nil
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// ValidateManifest checks required fields and returns an *InvalidManifestError
// naming all of the missing ones.
func ValidateManifest(manifest *Manifest) error {
	var missing []string
	if strings.TrimSpace(manifest.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(manifest.Version) == "" {
		missing = append(missing, "version")
	}
	if strings.TrimSpace(manifest.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(manifest.Author.Name) == "" {
		missing = append(missing, "author")
	}
	for i, c := range manifest.Commands {
		if strings.TrimSpace(c.Name) == "" {
			missing = append(missing, fmt.Sprintf("commands[%d].name", i))
		}
	}

	if len(missing) > 0 {
		return &InvalidManifestError{Missing: missing}
	}
	return nil
}

// PluginID derives the plugin id from the manifest name.
func PluginID(manifest *Manifest) string {
	return strings.ToLower(strings.TrimSpace(manifest.Name))
}

// IsValidName reports whether name can be used as a plugin id.
func IsValidName(name string) bool {
	return nameRegex.MatchString(name) && !strings.Contains(name, "..")
}

// isValidSemver checks if a version string follows semantic versioning
func isValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// CompareVersions compares dotted versions component-wise over
// major.minor.patch. Missing or non-numeric components count as 0. It returns
// -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < 3; i++ {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func versionParts(v string) [3]int {
	var parts [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	for i, field := range strings.Split(v, ".") {
		if i >= 3 {
			break
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			n = 0
		}
		parts[i] = n
	}
	return parts
}
