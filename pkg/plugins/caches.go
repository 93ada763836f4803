package plugins

import (
	"strings"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/ui"
	"github.com/platinummonkey/fleet/pkg/worker"
)

// CacheConfig sizes the four runtime caches.
type CacheConfig struct {
	Component cache.Config
	Template  cache.Config
	Asset     cache.Config
	Metadata  cache.Config
}

// DefaultCacheConfig returns the default cache sizes
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Component: cache.Config{Name: "component", MaxEntries: cache.DefaultComponentEntries, MaxSize: cache.DefaultComponentSize, DefaultTTL: cache.DefaultComponentTTL},
		Template:  cache.Config{Name: "template", MaxEntries: cache.DefaultTemplateEntries, MaxSize: cache.DefaultTemplateSize, DefaultTTL: cache.DefaultTemplateTTL},
		Asset:     cache.Config{Name: "asset", MaxEntries: cache.DefaultAssetEntries, MaxSize: cache.DefaultAssetSize, DefaultTTL: cache.DefaultAssetTTL},
		Metadata:  cache.Config{Name: "metadata", MaxEntries: cache.DefaultMetadataEntries, MaxSize: cache.DefaultMetadataSize, DefaultTTL: cache.DefaultMetadataTTL},
	}
}

// Caches groups the runtime caches. Keys are prefixed with the plugin id so a
// plugin's entries can be released together.
type Caches struct {
	Components *cache.Store[*worker.CommandResult]
	Templates  *cache.Store[ui.Template]
	Assets     *cache.Store[[]byte]
	Metadata   *cache.Store[*PluginPackage]
}

// NewCaches creates the four caches. opts apply to each of them.
func NewCaches(config CacheConfig, opts ...cache.Option) *Caches {
	return &Caches{
		Components: cache.New[*worker.CommandResult](config.Component, opts...),
		Templates:  cache.New[ui.Template](config.Template, opts...),
		Assets:     cache.New[[]byte](config.Asset, opts...),
		Metadata:   cache.New[*PluginPackage](config.Metadata, opts...),
	}
}

func cacheKey(pluginID, name string) string {
	return pluginID + "/" + name
}

// Purge removes every entry belonging to pluginID.
func (c *Caches) Purge(pluginID string) int {
	prefix := pluginID + "/"
	owned := func(key string) bool { return key == pluginID || strings.HasPrefix(key, prefix) }

	return c.Components.RemoveWhere(owned) +
		c.Templates.RemoveWhere(owned) +
		c.Assets.RemoveWhere(owned) +
		c.Metadata.RemoveWhere(owned)
}

// PurgeViews removes the rendered views and compiled templates of pluginID,
// keeping its assets and metadata.
func (c *Caches) PurgeViews(pluginID string) int {
	prefix := pluginID + "/"
	owned := func(key string) bool { return key == pluginID || strings.HasPrefix(key, prefix) }
	return c.Components.RemoveWhere(owned) + c.Templates.RemoveWhere(owned)
}

// PurgeExpired drops expired entries from every cache.
func (c *Caches) PurgeExpired() int {
	return c.Components.PurgeExpired() + c.Templates.PurgeExpired() + c.Assets.PurgeExpired() + c.Metadata.PurgeExpired()
}

// Shrink evicts the oldest fraction of every cache.
func (c *Caches) Shrink(fraction float64) int {
	return c.Components.Shrink(fraction) + c.Templates.Shrink(fraction) + c.Assets.Shrink(fraction) + c.Metadata.Shrink(fraction)
}

// Clear empties every cache.
func (c *Caches) Clear() {
	c.Components.Clear()
	c.Templates.Clear()
	c.Assets.Clear()
	c.Metadata.Clear()
}

// Stats returns the statistics of every cache.
func (c *Caches) Stats() []cache.Stats {
	return []cache.Stats{
		c.Components.Stats(),
		c.Templates.Stats(),
		c.Assets.Stats(),
		c.Metadata.Stats(),
	}
}
