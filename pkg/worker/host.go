package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/codec"
	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/ui"
)

// DefaultCommandTimeout bounds a single command or event handler.
const DefaultCommandTimeout = 30 * time.Second

var errInterrupted = errors.New("execution interrupted")

// Config configures a Host
type Config struct {
	PluginID       string
	Compiler       *ui.Compiler
	Templates      *cache.Store[ui.Template]
	CommandTimeout time.Duration
	CallTimeout    time.Duration
	Logger         *logrus.Logger
}

// Host runs one plugin's module in its own interpreter. The interpreter is
// owned by a single goroutine; everything else reaches it through envelopes
// on the host's channel.
type Host struct {
	cfg      Config
	log      *logrus.Entry
	bridge   *rpc.Bridge
	api      capability.API
	compiler *ui.Compiler
	registry *Registry
	jobs     *jobQueue
	timers   *timerSet
	running  atomic.Pointer[goja.Runtime]

	ctx       context.Context
	closeOnce sync.Once

	// owned by the job loop
	pluginID    string
	vm          *goja.Runtime
	exports     goja.Value
	commands    map[string]goja.Value
	manifest    []string
	loaded      bool
	torn        bool
	cmdCtx      context.Context
	scopeRoot   string
	currentRoot string
	pushedRoots []string
}

// NewHost creates a host serving ch. Call Start to begin processing.
func NewHost(ch rpc.Channel, cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Compiler == nil {
		cfg.Compiler = ui.NewCompiler(ui.WithCompilerLogger(cfg.Logger))
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	h := &Host{
		cfg:      cfg,
		log:      cfg.Logger.WithField("plugin", cfg.PluginID),
		compiler: cfg.Compiler,
		registry: NewRegistry(),
		jobs:     newJobQueue(),
		commands: make(map[string]goja.Value),
		pluginID: cfg.PluginID,
		ctx:      context.Background(),
	}
	h.timers = newTimerSet(h.runTimer)
	h.bridge = rpc.NewBridge(ch,
		rpc.WithHandler(h.enqueue),
		rpc.WithDefaultTimeout(cfg.CallTimeout),
		rpc.WithLogger(h.log.WithField("side", "worker")),
	)
	h.api = capability.NewClient(capability.CallerFunc(h.callHost))
	return h
}

// Start begins reading envelopes and running jobs until ctx ends or the
// channel closes.
func (h *Host) Start(ctx context.Context) {
	h.ctx = ctx
	h.bridge.Start(ctx)
	go h.loop(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-h.bridge.Done():
		}
		if vm := h.running.Load(); vm != nil {
			vm.Interrupt(errInterrupted)
		}
	}()
}

// Registry returns the host's root registry.
func (h *Host) Registry() *Registry {
	return h.registry
}

// Close tears down the channel. Pending host calls fail and the job loop exits.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if vm := h.running.Load(); vm != nil {
			vm.Interrupt(errInterrupted)
		}
		err = h.bridge.Close()
	})
	return err
}

func (h *Host) callHost(ctx context.Context, method string, args any) (json.RawMessage, error) {
	raw, err := rpc.Encode(args)
	if err != nil {
		return nil, err
	}
	return h.bridge.Call(ctx, rpc.TypeAPICall, rpc.CallPayload{Method: method, Args: raw})
}

func (h *Host) enqueue(env rpc.Envelope) {
	switch env.Type {
	case rpc.TypeLoad, rpc.TypeExecute, rpc.TypeEvent:
		h.jobs.push(func() { h.handle(env) })
	case rpc.TypeUnload:
		h.jobs.push(func() { h.handleUnload(env) })
	default:
		h.log.Debugf("Ignoring %s message", env.Type)
	}
}

func (h *Host) loop(ctx context.Context) {
	defer h.teardown()

	for {
		h.jobs.drain()
		h.timers.queue.drain()

		select {
		case <-h.jobs.signal:
		case <-h.timers.queue.signal:
		case <-h.bridge.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Host) handle(env rpc.Envelope) {
	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Errorf("Recovered panic handling %s: %v", env.Type, r)
				err = runtimeError(fmt.Sprintf("host panic: %v", r), string(debug.Stack()))
			}
		}()

		switch env.Type {
		case rpc.TypeLoad:
			result, err = h.load(env)
		case rpc.TypeExecute:
			result, err = h.execute(env)
		case rpc.TypeEvent:
			result, err = h.dispatch(env)
		}
	}()

	if errors.Is(err, ErrPluginRuntime) {
		if notifyErr := h.bridge.NotifyError(err); notifyErr != nil {
			h.log.Debugf("Failed to report error: %v", notifyErr)
		}
	}
	if replyErr := h.bridge.Reply(env, result, err); replyErr != nil {
		h.log.Debugf("Failed to reply to %s: %v", env.Type, replyErr)
	}
}

func (h *Host) handleUnload(env rpc.Envelope) {
	h.teardown()
	if err := h.bridge.Reply(env, nil, nil); err != nil {
		h.log.Debugf("Failed to acknowledge unload: %v", err)
	}
	_ = h.Close()
}

// teardown releases everything the loaded module holds. It runs once, on the
// job loop.
func (h *Host) teardown() {
	if h.torn {
		return
	}
	h.torn = true
	h.reset()
	h.log.Debug("Host unloaded")
}

// reset drops the current module, its roots and timers.
func (h *Host) reset() {
	h.timers.stopAll()
	h.registry.UnmountAll()
	h.currentRoot = ""
	h.pushedRoots = nil
	h.commands = make(map[string]goja.Value)
	h.exports = nil
	h.loaded = false
	h.vm = nil
	h.running.Store(nil)

	if h.cfg.Templates != nil && h.pluginID != "" {
		prefix := h.pluginID + "/"
		if n := h.cfg.Templates.RemoveWhere(func(key string) bool { return len(key) > len(prefix) && key[:len(prefix)] == prefix }); n > 0 {
			h.log.Debugf("Released %d cached templates", n)
		}
	}
}

func (h *Host) load(env rpc.Envelope) (any, error) {
	var req LoadRequest
	if err := env.Decode(&req); err != nil {
		return nil, err
	}
	if h.torn {
		return nil, rpc.ErrClosed
	}

	h.reset()
	if req.PluginID != "" {
		h.pluginID = req.PluginID
		h.log = h.cfg.Logger.WithField("plugin", req.PluginID)
	}
	h.manifest = req.Commands

	files := normalizeFiles(req.Files)
	entry, err := resolveEntry(files, req.Entry)
	if err != nil {
		return nil, runtimeError(err.Error(), "")
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	h.vm = vm
	h.running.Store(vm)
	h.installGlobals()

	api, err := h.apiModule(h.environment())
	if err != nil {
		return nil, err
	}

	exports, err := h.run(func() (goja.Value, error) {
		return newModuleLoader(vm, files, api).load(entry)
	})
	if err != nil {
		h.reset()
		return nil, err
	}

	h.exports = exports
	h.registerExportedCommands()
	commands := h.commandNames()
	if len(commands) == 0 && !h.resolvesManifestCommand() {
		h.reset()
		return nil, runtimeError(fmt.Sprintf("%s exposes no command", entry), "")
	}
	h.loaded = true

	ready := Ready{PluginID: h.pluginID, Entry: entry, Commands: commands}
	if err := h.bridge.Notify(rpc.TypeReady, ready); err != nil {
		h.log.Debugf("Failed to announce ready: %v", err)
	}
	h.log.WithField("entry", entry).Infof("Loaded module with %d commands", len(ready.Commands))
	return ready, nil
}

func (h *Host) environment() capability.Environment {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CommandTimeout)
	defer cancel()

	env, err := h.api.Environment(ctx)
	if err != nil {
		h.log.Debugf("Using default environment: %v", err)
		return capability.Environment{PluginName: h.pluginID}
	}
	return env
}

func (h *Host) registerExportedCommands() {
	obj, ok := h.exports.(*goja.Object)
	if !ok {
		return
	}
	commands, ok := obj.Get("commands").(*goja.Object)
	if !ok {
		return
	}
	for _, name := range commands.Keys() {
		if fn := commands.Get(name); isCallable(fn) {
			h.commands[name] = fn
		}
	}
}

func (h *Host) commandNames() []string {
	seen := make(map[string]bool)
	for name := range h.commands {
		seen[name] = true
	}
	if obj, ok := h.exports.(*goja.Object); ok {
		if isCallable(obj) {
			seen["default"] = true
		}
		for _, key := range obj.Keys() {
			if key != "commands" && isCallable(obj.Get(key)) {
				seen[key] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// commandProps is the value a command function receives: the fields of the
// argument bag, plus the bag itself as arguments and the launch type.
func (h *Host) commandProps(args json.RawMessage) *goja.Object {
	props := h.vm.NewObject()
	bag := h.jsonValue(args)
	if obj, ok := bag.(*goja.Object); ok && obj.ClassName() == "Object" {
		for _, key := range obj.Keys() {
			_ = props.Set(key, obj.Get(key))
		}
	}
	_ = props.Set("arguments", bag)
	_ = props.Set("launchType", "userInitiated")
	return props
}

func (h *Host) resolvesManifestCommand() bool {
	for _, name := range h.manifest {
		if fn, err := h.resolveCommand(name); err == nil && isCallable(fn) {
			return true
		}
	}
	return false
}

// resolveCommand finds the command target: registered commands first, then
// the default export for "default" or the first manifest command, then a
// named export.
func (h *Host) resolveCommand(name string) (goja.Value, error) {
	if fn, ok := h.commands[name]; ok {
		return fn, nil
	}

	obj, _ := h.exports.(*goja.Object)
	if name == "default" || (len(h.manifest) > 0 && h.manifest[0] == name) {
		if obj != nil {
			if def := obj.Get("default"); def != nil && !goja.IsUndefined(def) {
				return def, nil
			}
			if isCallable(obj) {
				return obj, nil
			}
		}
	}
	if obj != nil && name != "" {
		if v := obj.Get(name); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrCommandNotFound)
}

func (h *Host) execute(env rpc.Envelope) (any, error) {
	var req ExecuteRequest
	if err := env.Decode(&req); err != nil {
		return nil, err
	}
	if !h.loaded {
		return nil, ErrNotLoaded
	}
	if req.Mode == "" {
		req.Mode = ModeView
	}

	target, err := h.resolveCommand(req.Command)
	if err != nil {
		return nil, err
	}

	log := h.log.WithFields(logrus.Fields{"command": req.Command, "correlation_id": req.CorrelationID})
	result := &CommandResult{Kind: ResultCommandCompleted, Command: req.Command, CorrelationID: req.CorrelationID}

	var rootID string
	if req.Mode == ModeView {
		rootID = h.registry.NewRoot()
		h.scopeRoot = rootID
	}
	defer func() { h.scopeRoot = "" }()

	props := h.commandProps(req.Args)

	value, err := h.run(func() (goja.Value, error) {
		if fn, ok := goja.AssertFunction(target); ok {
			return fn(goja.Undefined(), props)
		}
		return target, nil
	})
	if err != nil {
		h.registry.Unmount(rootID)
		log.WithError(err).Warn("Command failed")
		return nil, err
	}

	if req.Mode == ModeNoView {
		log.Debug("Command completed")
		return result, nil
	}

	tree := exportTree(value)
	if isEmptyTree(tree) {
		h.registry.Unmount(rootID)
		return nil, ErrEmptyView
	}

	view, stylesheet := h.render(rootID, tree)
	h.replaceRoot(rootID)

	result.Kind = ResultViewCreated
	result.RootID = rootID
	result.View = view
	result.Stylesheet = stylesheet
	log.WithField("root", rootID).Debug("View created")
	return result, nil
}

// replaceRoot makes rootID current, unmounting the previous command view and
// every view pushed from it.
func (h *Host) replaceRoot(rootID string) {
	if h.currentRoot != "" {
		h.registry.Unmount(h.currentRoot)
	}
	for _, pushed := range h.pushedRoots {
		h.registry.Unmount(pushed)
	}
	h.pushedRoots = nil
	h.currentRoot = rootID
}

func isCallable(v goja.Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}

func exportTree(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return ui.FromValue(v.Export())
}

func isEmptyTree(tree any) bool {
	switch t := tree.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case *ui.Element:
		return t == nil
	}
	return false
}

// countingBinder records whether compilation bound any handler.
type countingBinder struct {
	ui.EventBinder
	bound int
}

func (b *countingBinder) Bind(event string, handler any) string {
	id := b.EventBinder.Bind(event, handler)
	if id != "" {
		b.bound++
	}
	return id
}

// render compiles tree into rootID and serializes it. Handler-free templates
// are shared through the template cache.
func (h *Host) render(rootID string, tree any) (*codec.SerializedComponent, string) {
	templates := h.cfg.Templates
	fingerprint, cacheable := "", false
	if templates != nil {
		fingerprint, cacheable = ui.Fingerprint(tree)
	}

	var tmpl ui.Template
	key := h.pluginID + "/" + fingerprint
	if cacheable {
		if cached, ok := templates.Get(key); ok {
			tmpl = cached
		}
	}
	if tmpl == nil {
		binder := &countingBinder{EventBinder: h.registry.Binder(rootID)}
		tmpl = h.compiler.Compile(tree, binder)
		if cacheable && binder.bound == 0 {
			if err := templates.Set(key, tmpl); err != nil {
				h.log.Debugf("Template not cached: %v", err)
			}
		}
	}

	return codec.Snapshot(codec.Mount(tmpl))
}

// push renders target into a new root and asks the host to push it.
func (h *Host) push(ctx context.Context, target any) error {
	if fn, ok := target.(func(goja.FunctionCall) goja.Value); ok {
		call, _ := goja.AssertFunction(h.vm.ToValue(fn))
		v, err := call(goja.Undefined())
		if err != nil {
			return err
		}
		target = v.Export()
	}

	tree := ui.FromValue(target)
	if isEmptyTree(tree) {
		return ErrEmptyView
	}

	rootID := h.registry.NewRoot()
	view, stylesheet := h.render(rootID, tree)
	if err := h.api.Navigation().Push(ctx, capability.View{RootID: rootID, Component: view, Stylesheet: stylesheet}); err != nil {
		h.registry.Unmount(rootID)
		return err
	}
	h.pushedRoots = append(h.pushedRoots, rootID)
	return nil
}

func (h *Host) dispatch(env rpc.Envelope) (any, error) {
	var req EventRequest
	if err := env.Decode(&req); err != nil {
		return nil, err
	}
	if !h.loaded {
		return nil, ErrNotLoaded
	}
	if !h.registry.Mounted(req.RootID) {
		return nil, fmt.Errorf("%s: %w", req.RootID, ErrUnknownRoot)
	}

	h.scopeRoot = req.RootID
	defer func() { h.scopeRoot = "" }()

	if req.HandlerID != "" {
		handler, err := h.registry.Handler(req.RootID, req.HandlerID)
		if err != nil {
			return nil, err
		}
		return nil, h.invoke(req.RootID, handler, req.Detail)
	}

	listeners, err := h.registry.Listeners(req.RootID, req.Event)
	if err != nil {
		return nil, err
	}
	for _, listener := range listeners {
		if err := h.invoke(req.RootID, listener, req.Detail); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (h *Host) invoke(rootID string, handler any, detail json.RawMessage) error {
	var call goja.Callable
	switch fn := handler.(type) {
	case ui.Action:
		return h.perform(rootID, fn)
	case *ui.Action:
		return h.perform(rootID, *fn)
	case goja.Callable:
		call = fn
	default:
		if reflect.TypeOf(handler).Kind() != reflect.Func {
			return fmt.Errorf("handler of type %T is not callable", handler)
		}
		c, ok := goja.AssertFunction(h.vm.ToValue(handler))
		if !ok {
			return fmt.Errorf("handler of type %T is not callable", handler)
		}
		call = c
	}

	_, err := h.run(func() (goja.Value, error) {
		return call(goja.Undefined(), h.jsonValue(detail))
	})
	return err
}

// perform runs a built-in action and reports it as an event.
func (h *Host) perform(rootID string, action ui.Action) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CommandTimeout)
	defer cancel()

	h.cmdCtx = ctx
	defer func() { h.cmdCtx = nil }()

	var err error
	switch action.Kind {
	case ui.ActionCopy:
		err = h.api.Clipboard().Copy(ctx, action.Content)
	case ui.ActionOpen:
		err = h.api.Navigation().Open(ctx, action.URL)
	case ui.ActionPush:
		err = h.push(ctx, action.Target)
	default:
		err = fmt.Errorf("unsupported action %q", action.Kind)
	}
	if err != nil {
		return err
	}

	h.emitFrom(rootID, "action", action)
	return nil
}

// run executes fn under the command deadline, settling a returned promise.
func (h *Host) run(fn func() (goja.Value, error)) (goja.Value, error) {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CommandTimeout)
	defer cancel()

	vm := h.vm
	vm.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(errInterrupted) })

	h.cmdCtx = ctx
	defer func() {
		stop()
		vm.ClearInterrupt()
		h.cmdCtx = nil
	}()

	value, err := fn()
	if err == nil {
		value, err = h.settle(ctx, value)
	}
	if err != nil {
		return nil, h.jsError(ctx, err)
	}
	return value, nil
}

// settle waits for a promise to resolve. Timers keep running while it is
// pending; a promise that can no longer settle is an error.
func (h *Host) settle(ctx context.Context, v goja.Value) (goja.Value, error) {
	for {
		obj, ok := v.(*goja.Object)
		if !ok {
			return v, nil
		}
		p, ok := obj.Export().(*goja.Promise)
		if !ok {
			return v, nil
		}

		switch p.State() {
		case goja.PromiseStateFulfilled:
			v = p.Result()
			continue
		case goja.PromiseStateRejected:
			return nil, h.valueError(p.Result(), "")
		}

		if h.timers.pending() == 0 && h.timers.queue.len() == 0 {
			return nil, runtimeError("promise never settled", "")
		}
		select {
		case <-h.timers.queue.signal:
			h.timers.queue.drain()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *Host) runTimer(fn goja.Callable, args []goja.Value) {
	if h.vm == nil {
		return
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		h.log.WithError(err).Warn("Timer callback failed")
	}
}

// jsError converts an interpreter failure into a wire error.
func (h *Host) jsError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("exceeded %s: %w", h.cfg.CommandTimeout, rpc.ErrTimeout)
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return h.valueError(ex.Value(), ex.String())
	}

	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		return err
	}
	return runtimeError(err.Error(), "")
}

// valueError builds a runtime error from a thrown or rejected value.
func (h *Host) valueError(v goja.Value, stack string) error {
	if v == nil {
		return runtimeError("", stack)
	}
	message := v.String()
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			message = m.String()
		}
		if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) && stack == "" {
			stack = s.String()
		}
	}
	return runtimeError(message, stack)
}

func (h *Host) jsonValue(raw json.RawMessage) goja.Value {
	if len(raw) == 0 {
		return h.vm.NewObject()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return h.vm.ToValue(string(raw))
	}
	return h.vm.ToValue(v)
}

func (h *Host) activeRoot() string {
	if h.scopeRoot != "" {
		return h.scopeRoot
	}
	return h.currentRoot
}

func (h *Host) emit(name string, detail any) {
	h.emitFrom(h.activeRoot(), name, detail)
}

func (h *Host) emitFrom(rootID, name string, detail any) {
	raw, err := rpc.Encode(detail)
	if err != nil {
		h.log.Debugf("Dropping event %s: %v", name, err)
		return
	}
	if err := h.bridge.Notify(rpc.TypeEvent, Event{RootID: rootID, Name: name, Detail: raw}); err != nil {
		h.log.Debugf("Failed to emit %s: %v", name, err)
	}
}
