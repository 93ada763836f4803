package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/storage"
)

// Host events published by the Service.
const (
	EventNavigation = "navigation"
	EventToast      = "toast"
	EventHUD        = "hud"
	EventOpen       = "open"
	EventPaste      = "paste"
)

// Navigation actions carried in NavigationEvent.
const (
	NavPush      = "push"
	NavPop       = "pop"
	NavReplace   = "replace"
	NavPopToRoot = "popToRoot"
	NavClear     = "clear"
)

// Publisher delivers host events to the UI shell.
type Publisher interface {
	Publish(pluginID, kind string, payload any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(pluginID, kind string, payload any)

func (f PublisherFunc) Publish(pluginID, kind string, payload any) { f(pluginID, kind, payload) }

// NavigationEvent is published for every navigation call.
type NavigationEvent struct {
	Action string `json:"action"`
	View   *View  `json:"view,omitempty"`
}

// OpenEvent is published when a plugin asks to open a URL, file or application.
type OpenEvent struct {
	Target      string `json:"target"`
	Application string `json:"application,omitempty"`
}

// ServiceConfig configures the default host API
type ServiceConfig struct {
	KV           storage.KV
	Clipboard    ClipboardBackend
	Publisher    Publisher
	Applications []Application
	HostVersion  string
	Theme        string
}

// Service is the default host-side API. Storage is namespaced per plugin;
// navigation, notifications and open requests are published as events.
type Service struct {
	kv           storage.KV
	clipboard    ClipboardBackend
	publisher    Publisher
	applications []Application
	hostVersion  string
	theme        string
}

// NewService creates a service, defaulting to in-memory storage and clipboard.
func NewService(config ServiceConfig) *Service {
	s := &Service{
		kv:           config.KV,
		clipboard:    config.Clipboard,
		publisher:    config.Publisher,
		applications: config.Applications,
		hostVersion:  config.HostVersion,
		theme:        config.Theme,
	}
	if s.kv == nil {
		s.kv = storage.NewMemoryKV()
	}
	if s.clipboard == nil {
		s.clipboard = &MemoryClipboard{}
	}
	if s.theme == "" {
		s.theme = "dark"
	}
	return s
}

// ForPlugin returns the API bound to pluginID.
func (s *Service) ForPlugin(pluginID string) API {
	return &pluginAPI{s: s, pluginID: pluginID}
}

func (s *Service) publish(pluginID, kind string, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(pluginID, kind, payload)
	}
}

type pluginAPI struct {
	s        *Service
	pluginID string
}

func (a *pluginAPI) Navigation() Navigation { return serviceNavigation(*a) }
func (a *pluginAPI) System() System         { return serviceSystem(*a) }
func (a *pluginAPI) Clipboard() Clipboard   { return serviceClipboard{s: a.s, pluginID: a.pluginID} }

func (a *pluginAPI) LocalStorage() Storage {
	return kvStorage{kv: a.s.kv, namespace: a.pluginID}
}

func (a *pluginAPI) Cache() Storage {
	return kvStorage{kv: a.s.kv, namespace: a.pluginID + ":cache"}
}

func (a *pluginAPI) Environment(context.Context) (Environment, error) {
	return Environment{
		PluginName:   a.pluginID,
		HostVersion:  a.s.hostVersion,
		Theme:        a.s.theme,
		Capabilities: Methods(),
	}, nil
}

type serviceNavigation pluginAPI

func (n serviceNavigation) nav(action string, view *View) error {
	n.s.publish(n.pluginID, EventNavigation, NavigationEvent{Action: action, View: view})
	return nil
}

func (n serviceNavigation) Pop(context.Context) error       { return n.nav(NavPop, nil) }
func (n serviceNavigation) PopToRoot(context.Context) error { return n.nav(NavPopToRoot, nil) }
func (n serviceNavigation) Clear(context.Context) error     { return n.nav(NavClear, nil) }

func (n serviceNavigation) Push(_ context.Context, view View) error {
	if view.Component == nil {
		return rpc.NewError("InvalidArguments", "push requires a view")
	}
	return n.nav(NavPush, &view)
}

func (n serviceNavigation) Replace(_ context.Context, view View) error {
	if view.Component == nil {
		return rpc.NewError("InvalidArguments", "replace requires a view")
	}
	return n.nav(NavReplace, &view)
}

func (n serviceNavigation) Open(_ context.Context, target string) error {
	if target == "" {
		return rpc.NewError("InvalidArguments", "open requires a target")
	}
	n.s.publish(n.pluginID, EventOpen, OpenEvent{Target: target})
	return nil
}

type serviceSystem pluginAPI

func (sys serviceSystem) ShowToast(_ context.Context, toast Toast) error {
	if toast.Style == "" {
		toast.Style = ToastSuccess
	}
	sys.s.publish(sys.pluginID, EventToast, toast)
	return nil
}

func (sys serviceSystem) ShowHUD(_ context.Context, message string) error {
	sys.s.publish(sys.pluginID, EventHUD, messageArgs{Message: message})
	return nil
}

func (sys serviceSystem) GetApplications(context.Context) ([]Application, error) {
	return append([]Application(nil), sys.s.applications...), nil
}

func (sys serviceSystem) OpenApplication(_ context.Context, name string) error {
	for _, app := range sys.s.applications {
		if strings.EqualFold(app.Name, name) || (app.BundleID != "" && app.BundleID == name) {
			sys.s.publish(sys.pluginID, EventOpen, OpenEvent{Target: app.Path, Application: app.Name})
			return nil
		}
	}
	return rpc.NewError("NotFound", fmt.Sprintf("application not found: %s", name))
}

type kvStorage struct {
	kv        storage.KV
	namespace string
}

func (k kvStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	return k.kv.Get(ctx, k.namespace, key)
}

func (k kvStorage) SetItem(ctx context.Context, key, value string) error {
	return k.kv.Set(ctx, k.namespace, key, value)
}

func (k kvStorage) RemoveItem(ctx context.Context, key string) error {
	return k.kv.Delete(ctx, k.namespace, key)
}

func (k kvStorage) AllItems(ctx context.Context) (map[string]string, error) {
	return k.kv.All(ctx, k.namespace)
}

func (k kvStorage) Clear(ctx context.Context) error {
	return k.kv.Clear(ctx, k.namespace)
}
