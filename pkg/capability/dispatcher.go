package capability

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/platinummonkey/fleet/pkg/rpc"
)

var (
	// ErrUnknownMethod is returned for methods outside the capability surface
	ErrUnknownMethod = rpc.NewError(rpc.CodeUnknownMethod, "unknown capability method")

	// ErrNoPlugin is returned when the context does not identify the caller
	ErrNoPlugin = rpc.NewError("NoPlugin", "capability call without plugin context")
)

type methodHandler func(ctx context.Context, api API, args json.RawMessage) (any, error)

// Dispatcher routes remote calls onto a host API implementation.
type Dispatcher struct {
	provider Provider
	table    map[string]methodHandler
}

// NewDispatcher creates a dispatcher over provider
func NewDispatcher(provider Provider) *Dispatcher {
	return &Dispatcher{provider: provider, table: dispatchTable()}
}

// Methods returns every dispatchable method name, sorted.
func (d *Dispatcher) Methods() []string {
	return Methods()
}

// Methods returns every method name of the capability surface, sorted.
func Methods() []string {
	table := dispatchTable()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs method for the plugin identified by ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, args json.RawMessage) (any, error) {
	pluginID, ok := PluginFromContext(ctx)
	if !ok {
		return nil, ErrNoPlugin
	}
	handler, ok := d.table[method]
	if !ok {
		return nil, rpc.NewError(rpc.CodeUnknownMethod, "unknown capability method: "+method)
	}
	return handler(ctx, d.provider.ForPlugin(pluginID), args)
}

func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, rpc.NewError("InvalidArguments", err.Error())
	}
	return v, nil
}

// none adapts a method without arguments or result.
func none(fn func(ctx context.Context, api API) error) methodHandler {
	return func(ctx context.Context, api API, _ json.RawMessage) (any, error) {
		return nil, fn(ctx, api)
	}
}

// with adapts a method taking decoded arguments and returning no result.
func with[T any](fn func(ctx context.Context, api API, args T) error) methodHandler {
	return func(ctx context.Context, api API, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[T](raw)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, api, args)
	}
}

func storageHandlers(table map[string]methodHandler, store func(API) Storage, get, set, remove, all, clearAll string) {
	table[get] = func(ctx context.Context, api API, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[keyArgs](raw)
		if err != nil {
			return nil, err
		}
		value, found, err := store(api).GetItem(ctx, args.Key)
		return itemResult{Value: value, Found: found}, err
	}
	table[set] = with(func(ctx context.Context, api API, args itemArgs) error {
		return store(api).SetItem(ctx, args.Key, args.Value)
	})
	table[remove] = with(func(ctx context.Context, api API, args keyArgs) error {
		return store(api).RemoveItem(ctx, args.Key)
	})
	table[all] = func(ctx context.Context, api API, _ json.RawMessage) (any, error) {
		return store(api).AllItems(ctx)
	}
	table[clearAll] = none(func(ctx context.Context, api API) error {
		return store(api).Clear(ctx)
	})
}

func dispatchTable() map[string]methodHandler {
	table := map[string]methodHandler{
		MethodNavigationPop: none(func(ctx context.Context, api API) error {
			return api.Navigation().Pop(ctx)
		}),
		MethodNavigationPush: with(func(ctx context.Context, api API, view View) error {
			return api.Navigation().Push(ctx, view)
		}),
		MethodNavigationReplace: with(func(ctx context.Context, api API, view View) error {
			return api.Navigation().Replace(ctx, view)
		}),
		MethodNavigationPopToRoot: none(func(ctx context.Context, api API) error {
			return api.Navigation().PopToRoot(ctx)
		}),
		MethodNavigationClear: none(func(ctx context.Context, api API) error {
			return api.Navigation().Clear(ctx)
		}),
		MethodNavigationOpen: with(func(ctx context.Context, api API, args targetArgs) error {
			return api.Navigation().Open(ctx, args.Target)
		}),

		MethodSystemShowToast: with(func(ctx context.Context, api API, toast Toast) error {
			return api.System().ShowToast(ctx, toast)
		}),
		MethodSystemShowHUD: with(func(ctx context.Context, api API, args messageArgs) error {
			return api.System().ShowHUD(ctx, args.Message)
		}),
		MethodSystemGetApplications: func(ctx context.Context, api API, _ json.RawMessage) (any, error) {
			return api.System().GetApplications(ctx)
		},
		MethodSystemOpenApplication: with(func(ctx context.Context, api API, args nameArgs) error {
			return api.System().OpenApplication(ctx, args.Name)
		}),

		MethodClipboardCopy: with(func(ctx context.Context, api API, args textArgs) error {
			return api.Clipboard().Copy(ctx, args.Text)
		}),
		MethodClipboardPaste: with(func(ctx context.Context, api API, args textArgs) error {
			return api.Clipboard().Paste(ctx, args.Text)
		}),
		MethodClipboardReadText: func(ctx context.Context, api API, _ json.RawMessage) (any, error) {
			return api.Clipboard().ReadText(ctx)
		},
		MethodClipboardClear: none(func(ctx context.Context, api API) error {
			return api.Clipboard().Clear(ctx)
		}),

		MethodEnvironmentGet: func(ctx context.Context, api API, _ json.RawMessage) (any, error) {
			return api.Environment(ctx)
		},
	}

	storageHandlers(table, API.LocalStorage,
		MethodLocalStorageGetItem, MethodLocalStorageSetItem, MethodLocalStorageRemoveItem,
		MethodLocalStorageAllItems, MethodLocalStorageClear)
	storageHandlers(table, API.Cache,
		MethodCacheGet, MethodCacheSet, MethodCacheRemove, MethodCacheAll, MethodCacheClear)

	return table
}
