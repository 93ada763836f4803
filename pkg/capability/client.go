package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// Caller performs one remote capability call.
type Caller interface {
	Call(ctx context.Context, method string, args any) (json.RawMessage, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, method string, args any) (json.RawMessage, error)

func (f CallerFunc) Call(ctx context.Context, method string, args any) (json.RawMessage, error) {
	return f(ctx, method, args)
}

// Client implements API by forwarding every method as a remote call.
type Client struct {
	caller Caller
}

// NewClient creates a client over caller
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	raw, err := c.caller.Call(ctx, method, args)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) Navigation() Navigation { return clientNavigation{c} }
func (c *Client) System() System         { return clientSystem{c} }
func (c *Client) Clipboard() Clipboard   { return clientClipboard{c} }

func (c *Client) LocalStorage() Storage {
	return clientStorage{c: c, get: MethodLocalStorageGetItem, set: MethodLocalStorageSetItem,
		remove: MethodLocalStorageRemoveItem, all: MethodLocalStorageAllItems, clear: MethodLocalStorageClear}
}

func (c *Client) Cache() Storage {
	return clientStorage{c: c, get: MethodCacheGet, set: MethodCacheSet,
		remove: MethodCacheRemove, all: MethodCacheAll, clear: MethodCacheClear}
}

func (c *Client) Environment(ctx context.Context) (Environment, error) {
	var env Environment
	err := c.call(ctx, MethodEnvironmentGet, nil, &env)
	return env, err
}

type clientNavigation struct{ c *Client }

func (n clientNavigation) Pop(ctx context.Context) error {
	return n.c.call(ctx, MethodNavigationPop, nil, nil)
}

func (n clientNavigation) Push(ctx context.Context, view View) error {
	return n.c.call(ctx, MethodNavigationPush, view, nil)
}

func (n clientNavigation) Replace(ctx context.Context, view View) error {
	return n.c.call(ctx, MethodNavigationReplace, view, nil)
}

func (n clientNavigation) PopToRoot(ctx context.Context) error {
	return n.c.call(ctx, MethodNavigationPopToRoot, nil, nil)
}

func (n clientNavigation) Clear(ctx context.Context) error {
	return n.c.call(ctx, MethodNavigationClear, nil, nil)
}

func (n clientNavigation) Open(ctx context.Context, target string) error {
	return n.c.call(ctx, MethodNavigationOpen, targetArgs{Target: target}, nil)
}

type clientSystem struct{ c *Client }

func (s clientSystem) ShowToast(ctx context.Context, toast Toast) error {
	return s.c.call(ctx, MethodSystemShowToast, toast, nil)
}

func (s clientSystem) ShowHUD(ctx context.Context, message string) error {
	return s.c.call(ctx, MethodSystemShowHUD, messageArgs{Message: message}, nil)
}

func (s clientSystem) GetApplications(ctx context.Context) ([]Application, error) {
	var apps []Application
	err := s.c.call(ctx, MethodSystemGetApplications, nil, &apps)
	return apps, err
}

func (s clientSystem) OpenApplication(ctx context.Context, name string) error {
	return s.c.call(ctx, MethodSystemOpenApplication, nameArgs{Name: name}, nil)
}

type clientStorage struct {
	c                              *Client
	get, set, remove, all, clear string
}

func (s clientStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var res itemResult
	err := s.c.call(ctx, s.get, keyArgs{Key: key}, &res)
	return res.Value, res.Found, err
}

func (s clientStorage) SetItem(ctx context.Context, key, value string) error {
	return s.c.call(ctx, s.set, itemArgs{Key: key, Value: value}, nil)
}

func (s clientStorage) RemoveItem(ctx context.Context, key string) error {
	return s.c.call(ctx, s.remove, keyArgs{Key: key}, nil)
}

func (s clientStorage) AllItems(ctx context.Context) (map[string]string, error) {
	items := map[string]string{}
	err := s.c.call(ctx, s.all, nil, &items)
	return items, err
}

func (s clientStorage) Clear(ctx context.Context) error {
	return s.c.call(ctx, s.clear, nil, nil)
}

type clientClipboard struct{ c *Client }

func (cb clientClipboard) Copy(ctx context.Context, text string) error {
	return cb.c.call(ctx, MethodClipboardCopy, textArgs{Text: text}, nil)
}

func (cb clientClipboard) Paste(ctx context.Context, text string) error {
	return cb.c.call(ctx, MethodClipboardPaste, textArgs{Text: text}, nil)
}

func (cb clientClipboard) ReadText(ctx context.Context) (string, error) {
	var text string
	err := cb.c.call(ctx, MethodClipboardReadText, nil, &text)
	return text, err
}

func (cb clientClipboard) Clear(ctx context.Context) error {
	return cb.c.call(ctx, MethodClipboardClear, nil, nil)
}
