package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/codec"
	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/storage"
	"github.com/platinummonkey/fleet/pkg/ui"
)

type recorder struct {
	mu        sync.Mutex
	logs      []string
	events    []Event
	errors    []error
	published []string
	views     []capability.View
	ready     []Ready
}

func (r *recorder) WorkerReady(_ string, ready Ready) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, ready)
}

func (r *recorder) WorkerLog(_, level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, level+":"+message)
}

func (r *recorder) WorkerEvent(_ string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) WorkerError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) Publish(_ string, kind string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, kind)
	if nav, ok := payload.(capability.NavigationEvent); ok && nav.View != nil {
		r.views = append(r.views, *nav.View)
	}
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		logs:      append([]string(nil), r.logs...),
		events:    append([]Event(nil), r.events...),
		errors:    append([]error(nil), r.errors...),
		published: append([]string(nil), r.published...),
		views:     append([]capability.View(nil), r.views...),
		ready:     append([]Ready(nil), r.ready...),
	}
}

type harness struct {
	worker    *Worker
	rec       *recorder
	kv        *storage.MemoryKV
	clipboard *capability.MemoryClipboard
	templates *cache.Store[ui.Template]
	hook      *test.Hook
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := &recorder{}
	kv := storage.NewMemoryKV()
	cb := &capability.MemoryClipboard{}
	svc := capability.NewService(capability.ServiceConfig{KV: kv, Clipboard: cb, Publisher: rec, HostVersion: "1.0.0"})
	templates := cache.New[ui.Template](cache.Config{Name: "template", MaxEntries: 10, MaxSize: 1 << 20, DefaultTTL: time.Hour})

	w := Spawn(context.Background(), Options{
		PluginID:       "demo",
		Compiler:       ui.NewCompiler(ui.WithCompilerLogger(logger)),
		Templates:      templates,
		Dispatcher:     capability.NewDispatcher(svc),
		Listener:       rec,
		CommandTimeout: timeout,
		CallTimeout:    time.Second,
		Logger:         logger,
	})
	t.Cleanup(func() { _ = w.Unload(context.Background()) })

	return &harness{worker: w, rec: rec, kv: kv, clipboard: cb, templates: templates, hook: hook}
}

func (h *harness) load(t *testing.T, files map[string]string, commands ...string) *Ready {
	t.Helper()
	ready, err := h.worker.Load(context.Background(), LoadRequest{Files: files, Commands: commands})
	require.NoError(t, err)
	return ready
}

func findText(sc *codec.SerializedComponent, text string) *codec.SerializedComponent {
	return codec.Find(sc, func(c *codec.SerializedComponent) bool {
		return strings.Contains(c.TextContent, text)
	})
}

const listPlugin = `
import { List, createElement } from "@fleet-chat/api";

export default function Command() {
  return createElement(List, { searchBarPlaceholder: "Search" },
    createElement(List.Item, { title: "Hello" }));
}
`

// TestWorker_ViewCommand tests loading a package and rendering its default command
func TestWorker_ViewCommand(t *testing.T) {
	h := newHarness(t, time.Second)
	ready := h.load(t, map[string]string{"plugin.js": listPlugin}, "hello")
	assert.Equal(t, "plugin.js", ready.Entry)
	assert.Contains(t, ready.Commands, "default")

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "hello", Mode: ModeView, CorrelationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, ResultViewCreated, result.Kind)
	assert.Equal(t, "c1", result.CorrelationID)
	require.NotNil(t, result.View)
	assert.Equal(t, codec.RootID, result.View.ID)
	assert.NotNil(t, findText(result.View, "Hello"))
	assert.NotEmpty(t, result.RootID)

	assert.Eventually(t, func() bool { return len(h.rec.snapshot().ready) == 1 }, time.Second, 10*time.Millisecond)
}

// TestWorker_CommandNotFound tests that an unknown command fails without breaking the host
func TestWorker_CommandNotFound(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": listPlugin}, "hello")

	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandNotFound))

	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	assert.NoError(t, err)
}

// TestWorker_RuntimeError tests that thrown errors carry message and stack
func TestWorker_RuntimeError(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `
export function boom() {
  throw new Error("kaput");
}
export function fine() { return "ok"; }
`})

	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "boom"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginRuntime))

	var re *rpc.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "kaput", re.Message)
	assert.Contains(t, re.Stack, "index.js")

	assert.Eventually(t, func() bool { return len(h.rec.snapshot().errors) == 1 }, time.Second, 10*time.Millisecond)

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "fine", Mode: ModeNoView})
	require.NoError(t, err)
	assert.Equal(t, ResultCommandCompleted, result.Kind)
}

// TestWorker_AsyncCommands tests promise settlement
func TestWorker_AsyncCommands(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `
import { Detail, createElement } from "@raycast/api";

export async function later() {
  await new Promise(function (resolve) { setTimeout(resolve, 10); });
  return createElement(Detail, { markdown: "done" });
}
export async function rejects() {
  throw new Error("async failure");
}
export function hangs() {
  return new Promise(function () {});
}
`})

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "later"})
	require.NoError(t, err)
	assert.NotNil(t, findText(result.View, "done"))

	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "rejects"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginRuntime))
	assert.Contains(t, err.Error(), "async failure")

	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "hangs", Mode: ModeNoView})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginRuntime))
}

// TestWorker_EmptyView tests the view and no-view modes with an empty result
func TestWorker_EmptyView(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `export function nothing() { return null; }`})

	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "nothing", Mode: ModeView})
	assert.True(t, errors.Is(err, ErrEmptyView))

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "nothing", Mode: ModeNoView})
	require.NoError(t, err)
	assert.Equal(t, ResultCommandCompleted, result.Kind)
	assert.Nil(t, result.View)
}

// TestWorker_Timeout tests that a runaway command is interrupted
func TestWorker_Timeout(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	h.load(t, map[string]string{"index.js": `
export function spin() { while (true) {} }
export function quick() { return "fast"; }
`})

	start := time.Now()
	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "spin", Mode: ModeNoView})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpc.ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)

	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "quick", Mode: ModeNoView})
	assert.NoError(t, err)
}

// TestWorker_Capabilities tests capability calls from plugin code
func TestWorker_Capabilities(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `
import { LocalStorage, Clipboard, Cache, showToast, Toast, environment } from "@fleet-chat/api";

export async function save() {
  await LocalStorage.setItem("greeting", "hi");
  var cache = new Cache();
  cache.set("n", 42);
  await Clipboard.copy(environment.pluginName + "@" + environment.hostVersion);
  await showToast({ style: Toast.Style.Success, title: "Saved" });
  if ((await LocalStorage.getItem("absent")) !== undefined) throw new Error("expected undefined");
  if (cache.get("n") !== "42") throw new Error("cache mismatch");
  console.log("saved", { ok: true });
}
`})

	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "save", Mode: ModeNoView})
	require.NoError(t, err)

	v, found, err := h.kv.Get(context.Background(), "demo", "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hi", v)

	v, _, _ = h.kv.Get(context.Background(), "demo:cache", "n")
	assert.Equal(t, "42", v)

	text, _ := h.clipboard.ReadText()
	assert.Equal(t, "demo@1.0.0", text)

	snap := h.rec.snapshot()
	assert.Contains(t, snap.published, capability.EventToast)
	assert.Eventually(t, func() bool {
		for _, l := range h.rec.snapshot().logs {
			if l == `info:saved {"ok":true}` {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

// TestWorker_CapabilityPromises tests that capability calls return promises
func TestWorker_CapabilityPromises(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "then chaining",
			body: `return LocalStorage.setItem("k", "v").then(function () { return LocalStorage.getItem("k"); }).then(function (v) {
    if (v !== "v") throw new Error("got " + v);
  });`,
		},
		{
			name: "promise all",
			body: `return Promise.all([Clipboard.copy("x"), showHUD("hud"), LocalStorage.allItems()]).then(function (r) {
    if (r[0] !== undefined) throw new Error("copy resolved with " + r[0]);
  });`,
		},
		{
			name: "rejection is catchable",
			body: `return openApplication("nope").then(function () { throw new Error("expected rejection"); }, function (e) {
    if (String(e.message).indexOf("application not found") < 0) throw new Error("wrong reason " + e.message);
  });`,
		},
		{
			name:    "uncaught rejection fails the command",
			body:    `return openApplication("nope");`,
			wantErr: "application not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			h.load(t, map[string]string{"index.js": `
import { LocalStorage, Clipboard, showHUD, openApplication } from "@fleet-chat/api";

export function run() {
  ` + tt.body + `
}
`})

			_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "run", Mode: ModeNoView})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

// TestWorker_CommandArguments tests the value a command function receives
func TestWorker_CommandArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"object bag", `{"name":"Ada"}`, "Ada|Ada|userInitiated"},
		{"no arguments", ``, "||userInitiated"},
		{"array bag", `["Ada"]`, "|Ada|userInitiated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			h.load(t, map[string]string{"index.js": `
import { LocalStorage } from "@fleet-chat/api";

export async function run(props) {
  var inner = Array.isArray(props.arguments) ? props.arguments[0] : props.arguments.name;
  await LocalStorage.setItem("seen", [props.name, inner, props.launchType].join("|"));
}
`})

			_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "run", Mode: ModeNoView, Args: json.RawMessage(tt.args)})
			require.NoError(t, err)

			v, _, err := h.kv.Get(context.Background(), "demo", "seen")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

// TestWorker_EventForwarding tests handler dispatch and event emission
func TestWorker_EventForwarding(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `
import { events, createElement } from "@fleet-chat/api";

export default function Command() {
  events.on("refresh", function (detail) { events.emit("refreshed", detail); });
  return createElement("button", { onClick: function (detail) { events.emit("clicked", detail); } }, "Go");
}
`})

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	require.NoError(t, err)

	button := codec.Find(result.View, func(c *codec.SerializedComponent) bool { return c.Type == "button" })
	require.NotNil(t, button)
	handlerID := button.Events["click"]
	require.NotEmpty(t, handlerID)

	err = h.worker.DispatchEvent(context.Background(), EventRequest{RootID: result.RootID, HandlerID: handlerID, Detail: json.RawMessage(`{"x":1}`)})
	require.NoError(t, err)

	err = h.worker.DispatchEvent(context.Background(), EventRequest{RootID: result.RootID, Event: "refresh", Detail: json.RawMessage(`"now"`)})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(h.rec.snapshot().events) == 2 }, time.Second, 10*time.Millisecond)
	events := h.rec.snapshot().events
	assert.Equal(t, "clicked", events[0].Name)
	assert.Equal(t, result.RootID, events[0].RootID)
	assert.JSONEq(t, `{"x":1}`, string(events[0].Detail))
	assert.Equal(t, "refreshed", events[1].Name)

	err = h.worker.DispatchEvent(context.Background(), EventRequest{RootID: "root_999", HandlerID: handlerID})
	assert.True(t, errors.Is(err, ErrUnknownRoot))

	// a new view unmounts the previous root
	second, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	require.NoError(t, err)
	assert.NotEqual(t, result.RootID, second.RootID)
	err = h.worker.DispatchEvent(context.Background(), EventRequest{RootID: result.RootID, HandlerID: handlerID})
	assert.True(t, errors.Is(err, ErrUnknownRoot))
}

// TestWorker_BuiltinActions tests copy and push actions
func TestWorker_BuiltinActions(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": `
import { List, ActionPanel, Action, Detail, createElement } from "@fleet-chat/api";

export default function Command() {
  return createElement(List, {},
    createElement(List.Item, {
      title: "Item",
      actions: createElement(ActionPanel, {},
        createElement(Action.CopyToClipboard, { content: "copied text" }),
        createElement(Action.Push, { title: "Show", target: createElement(Detail, { markdown: "pushed" }) }))
    }));
}
`})

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	require.NoError(t, err)

	byAction := func(kind string) string {
		sc := codec.Find(result.View, func(c *codec.SerializedComponent) bool {
			return c.Attributes["data-action"] == kind
		})
		require.NotNil(t, sc, kind)
		return sc.Events["click"]
	}

	require.NoError(t, h.worker.DispatchEvent(context.Background(), EventRequest{RootID: result.RootID, HandlerID: byAction(ui.ActionCopy)}))
	text, _ := h.clipboard.ReadText()
	assert.Equal(t, "copied text", text)

	require.NoError(t, h.worker.DispatchEvent(context.Background(), EventRequest{RootID: result.RootID, HandlerID: byAction(ui.ActionPush)}))
	snap := h.rec.snapshot()
	require.Len(t, snap.views, 1)
	assert.NotEqual(t, result.RootID, snap.views[0].RootID)
	assert.NotNil(t, findText(snap.views[0].Component, "pushed"))
}

// TestWorker_TemplateCache tests that handler-free views share compiled templates
func TestWorker_TemplateCache(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": listPlugin})

	for i := 0; i < 3; i++ {
		_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
		require.NoError(t, err)
	}
	stats := h.templates.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)

	require.NoError(t, h.worker.Unload(context.Background()))
	assert.Eventually(t, func() bool { return h.templates.Len() == 0 }, time.Second, 10*time.Millisecond)
}

// TestWorker_UnloadIdempotent tests repeated unloads and calls after unload
func TestWorker_UnloadIdempotent(t *testing.T) {
	h := newHarness(t, time.Second)
	h.load(t, map[string]string{"index.js": listPlugin})

	require.NoError(t, h.worker.Unload(context.Background()))
	require.NoError(t, h.worker.Unload(context.Background()))
	assert.True(t, h.worker.Unloaded())

	_, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	assert.True(t, errors.Is(err, rpc.ErrClosed))

	select {
	case <-h.worker.Done():
	case <-time.After(time.Second):
		t.Fatal("worker channel not closed")
	}
}

// TestWorker_LoadFailure tests syntax errors and missing entries
func TestWorker_LoadFailure(t *testing.T) {
	h := newHarness(t, time.Second)

	_, err := h.worker.Load(context.Background(), LoadRequest{Files: map[string]string{"index.js": "export default function ( {"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginRuntime))

	_, err = h.worker.Load(context.Background(), LoadRequest{Files: map[string]string{"README.md": "# hi"}})
	require.Error(t, err)

	_, err = h.worker.Load(context.Background(), LoadRequest{Files: map[string]string{"index.js": "var x = 1;"}, Commands: []string{"list"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginRuntime))
	assert.Contains(t, err.Error(), "exposes no command")

	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	assert.True(t, errors.Is(err, ErrNotLoaded))

	h.load(t, map[string]string{"index.js": listPlugin})
	_, err = h.worker.Execute(context.Background(), ExecuteRequest{Command: "default"})
	assert.NoError(t, err)
}

// TestWorker_RegisteredCommands tests registerCommand and module.exports.commands
func TestWorker_RegisteredCommands(t *testing.T) {
	h := newHarness(t, time.Second)
	ready := h.load(t, map[string]string{
		"src/index.js": `
const api = require("@fleet-chat/api");
const helpers = require("./helpers");
api.registerCommand("greet", function (props) {
  return api.createElement(api.Detail, { markdown: helpers.greeting(props.arguments.name) });
});
module.exports = { commands: { other: function () { return "x"; } } };
`,
		"src/helpers.js": `exports.greeting = function (name) { return "Hello, " + name; };`,
	})
	assert.Equal(t, "src/index.js", ready.Entry)
	assert.Contains(t, ready.Commands, "greet")
	assert.Contains(t, ready.Commands, "other")

	result, err := h.worker.Execute(context.Background(), ExecuteRequest{Command: "greet", Args: json.RawMessage(`{"name":"Ada"}`)})
	require.NoError(t, err)
	assert.NotNil(t, findText(result.View, "Hello, Ada"))
}
