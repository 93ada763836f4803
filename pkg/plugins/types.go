package plugins

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/fleet/pkg/worker"
)

// Manifest describes a plugin package. It is immutable once loaded.
type Manifest struct {
	Name        string            `json:"name" yaml:"name"`
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description" yaml:"description"`
	Author      Author            `json:"author" yaml:"author"`
	Icon        string            `json:"icon,omitempty" yaml:"icon,omitempty"`
	License     string            `json:"license,omitempty" yaml:"license,omitempty"`
	Main        string            `json:"main,omitempty" yaml:"main,omitempty"`
	Commands    []CommandSpec     `json:"commands,omitempty" yaml:"commands,omitempty"`
	Categories  []string          `json:"categories,omitempty" yaml:"categories,omitempty"`
	Keywords    []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Permissions []string          `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Preferences []Preference      `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CommandSpec describes one command a plugin provides.
type CommandSpec struct {
	Name        string       `json:"name" yaml:"name"`
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Mode        string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	Keywords    []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Preferences []Preference `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	Arguments   []Argument   `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// ExecutionMode returns the command's mode, defaulting to view.
func (c CommandSpec) ExecutionMode() string {
	if c.Mode == worker.ModeNoView {
		return worker.ModeNoView
	}
	return worker.ModeView
}

// Preference is a user-configurable setting declared by a plugin or command.
type Preference struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Argument is a positional input a command accepts.
type Argument struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Author accepts either a plain string or an object with a name.
type Author struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

func (a *Author) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = Author{Name: name}
		return nil
	}
	type plain Author
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = Author(obj)
	return nil
}

func (a *Author) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = Author{Name: node.Value}
		return nil
	}
	type plain Author
	var obj plain
	if err := node.Decode(&obj); err != nil {
		return err
	}
	*a = Author(obj)
	return nil
}

// Command returns the command named name.
func (m *Manifest) Command(name string) (CommandSpec, bool) {
	for _, c := range m.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return CommandSpec{}, false
}

// CommandNames returns the declared command names in manifest order.
func (m *Manifest) CommandNames() []string {
	names := make([]string, len(m.Commands))
	for i, c := range m.Commands {
		names[i] = c.Name
	}
	return names
}

// PackageMetadata is the optional metadata.json written by the packager.
type PackageMetadata struct {
	Manifest    *Manifest       `json:"manifest,omitempty"`
	Checksum    string          `json:"checksum,omitempty"`
	BuildTime   string          `json:"buildTime,omitempty"`
	HostVersion string          `json:"fleetChatVersion,omitempty"`
	Provenance  map[string]bool `json:"provenance,omitempty"`
}

func (m *PackageMetadata) UnmarshalJSON(data []byte) error {
	type plain PackageMetadata
	var raw struct {
		plain
		MinHostVersion    string `json:"minHostVersion"`
		CompatibleVersion string `json:"compatibleVersion"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = PackageMetadata(raw.plain)
	if m.HostVersion == "" {
		m.HostVersion = raw.MinHostVersion
	}
	if m.HostVersion == "" {
		m.HostVersion = raw.CompatibleVersion
	}
	return nil
}

// PluginPackage is a decoded package archive.
type PluginPackage struct {
	Manifest     *Manifest         `json:"manifest"`
	ManifestFile string            `json:"manifestFile"`
	Code         map[string]string `json:"-"`
	Assets       map[string][]byte `json:"-"`
	Metadata     *PackageMetadata  `json:"metadata,omitempty"`
	Checksum     string            `json:"checksum"`
	Size         int64             `json:"size"`
}

// State is the lifecycle state of an installed plugin.
type State string

const (
	StateRegistered State = "registered"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateError      State = "error"
	StateUnloaded   State = "unloaded"
)

// InstalledPlugin is the manager's view of one plugin.
type InstalledPlugin struct {
	ID          string         `json:"id"`
	Manifest    *Manifest      `json:"manifest"`
	Package     *PluginPackage `json:"package,omitempty"`
	Source      string         `json:"source"`
	InstalledAt time.Time      `json:"installedAt"`
	State       State          `json:"state"`
	LastError   string         `json:"lastError,omitempty"`
	Warnings    []Warning      `json:"warnings,omitempty"`
}

// Invocation is a request to run one command.
type Invocation struct {
	PluginID      string          `json:"pluginId"`
	Command       string          `json:"command"`
	Mode          string          `json:"mode,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// CommandInfo is one entry of the launcher's command list.
type CommandInfo struct {
	Key         string `json:"key"`
	PluginID    string `json:"pluginId"`
	Command     string `json:"command"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode"`
}
