package capability

import (
	"context"

	"github.com/platinummonkey/fleet/pkg/codec"
	"github.com/platinummonkey/fleet/pkg/contextkeys"
)

// Method names carried in apiCall envelopes.
const (
	MethodNavigationPop       = "navigation.pop"
	MethodNavigationPush      = "navigation.push"
	MethodNavigationReplace   = "navigation.replace"
	MethodNavigationPopToRoot = "navigation.popToRoot"
	MethodNavigationClear     = "navigation.clear"
	MethodNavigationOpen      = "navigation.open"

	MethodSystemShowToast       = "system.showToast"
	MethodSystemShowHUD         = "system.showHUD"
	MethodSystemGetApplications = "system.getApplications"
	MethodSystemOpenApplication = "system.openApplication"

	MethodLocalStorageGetItem    = "localStorage.getItem"
	MethodLocalStorageSetItem    = "localStorage.setItem"
	MethodLocalStorageRemoveItem = "localStorage.removeItem"
	MethodLocalStorageAllItems   = "localStorage.allItems"
	MethodLocalStorageClear      = "localStorage.clear"

	MethodCacheGet    = "cache.get"
	MethodCacheSet    = "cache.set"
	MethodCacheRemove = "cache.remove"
	MethodCacheAll    = "cache.all"
	MethodCacheClear  = "cache.clear"

	MethodClipboardCopy     = "clipboard.copy"
	MethodClipboardPaste    = "clipboard.paste"
	MethodClipboardReadText = "clipboard.readText"
	MethodClipboardClear    = "clipboard.clear"

	MethodEnvironmentGet = "environment.get"
)

// Toast styles
const (
	ToastSuccess   = "success"
	ToastFailure   = "failure"
	ToastAnimated  = "animated"
	DefaultToastMs = 3000
)

// View is a serialized view pushed onto the navigation stack.
type View struct {
	RootID     string                     `json:"rootId,omitempty"`
	Component  *codec.SerializedComponent `json:"component"`
	Stylesheet string                     `json:"stylesheet,omitempty"`
}

// Toast is a transient notification.
type Toast struct {
	Style   string `json:"style,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Application is an installed application the launcher can open.
type Application struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	BundleID string `json:"bundleId,omitempty"`
}

// Environment describes the host to a plugin.
type Environment struct {
	PluginName   string   `json:"pluginName"`
	HostVersion  string   `json:"hostVersion"`
	Theme        string   `json:"theme"`
	Capabilities []string `json:"capabilities"`
}

// Navigation controls the view stack.
type Navigation interface {
	Pop(ctx context.Context) error
	Push(ctx context.Context, view View) error
	Replace(ctx context.Context, view View) error
	PopToRoot(ctx context.Context) error
	Clear(ctx context.Context) error
	Open(ctx context.Context, target string) error
}

// System exposes host notifications and applications.
type System interface {
	ShowToast(ctx context.Context, toast Toast) error
	ShowHUD(ctx context.Context, message string) error
	GetApplications(ctx context.Context) ([]Application, error)
	OpenApplication(ctx context.Context, name string) error
}

// Storage is a per-plugin string store.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	AllItems(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
	Paste(ctx context.Context, text string) error
	ReadText(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// API is the complete capability surface available to a plugin.
type API interface {
	Navigation() Navigation
	System() System
	LocalStorage() Storage
	Cache() Storage
	Clipboard() Clipboard
	Environment(ctx context.Context) (Environment, error)
}

// Provider returns the API bound to one plugin.
type Provider interface {
	ForPlugin(pluginID string) API
}

// WithPlugin returns a context carrying the calling plugin's id.
func WithPlugin(ctx context.Context, pluginID string) context.Context {
	return context.WithValue(ctx, contextkeys.PluginIDKey, pluginID)
}

// PluginFromContext returns the calling plugin's id.
func PluginFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextkeys.PluginIDKey).(string)
	return id, ok && id != ""
}

// wire argument shapes
type (
	keyArgs struct {
		Key string `json:"key"`
	}
	itemArgs struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	textArgs struct {
		Text string `json:"text"`
	}
	targetArgs struct {
		Target string `json:"target"`
	}
	messageArgs struct {
		Message string `json:"message"`
	}
	nameArgs struct {
		Name string `json:"name"`
	}
	itemResult struct {
		Value string `json:"value"`
		Found bool   `json:"found"`
	}
)
