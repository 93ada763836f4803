package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/ui"
	"github.com/platinummonkey/fleet/pkg/worker"
)

// DefaultMaxWorkers bounds the number of running execution hosts.
const DefaultMaxWorkers = 8

const tracerName = "github.com/platinummonkey/fleet/pkg/plugins"

// Config configures a Manager
type Config struct {
	MaxWorkers     int
	CommandTimeout time.Duration
	CallTimeout    time.Duration
	IdleTimeout    time.Duration // hosts idle longer are unloaded by Optimize; 0 keeps them

	Compiler     *ui.Compiler
	Caches       *Caches
	Capabilities capability.ServiceConfig
	Monitor      *cache.Monitor
	Recorder     Recorder
	Tracer       trace.Tracer
	Logger       *logrus.Logger
}

// Manager owns installed plugins and their execution hosts. Commands of one
// plugin run one at a time; different plugins run concurrently up to
// MaxWorkers hosts.
type Manager struct {
	cfg        Config
	log        *logrus.Logger
	bus        *Bus
	caches     *Caches
	compiler   *ui.Compiler
	dispatcher *capability.Dispatcher
	monitor    *cache.Monitor
	recorder   Recorder
	tracer     trace.Tracer
	slots      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	records map[string]*record
	active  int
	closed  bool
}

// record is the manager-private state of one plugin.
type record struct {
	id   string
	exec chan struct{} // held while a command, event or load runs

	// guarded by Manager.mu
	plugin   *InstalledPlugin
	worker   *worker.Worker
	inflight int
	lastUsed time.Time
}

// NewManager creates a manager
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultMaxWorkers
	}
	if config.Compiler == nil {
		config.Compiler = ui.NewCompiler(ui.WithCompilerLogger(config.Logger))
	}
	if config.Caches == nil {
		config.Caches = NewCaches(DefaultCacheConfig())
	}
	if config.Monitor == nil {
		config.Monitor = cache.NewMonitor(cache.DefaultMonitorConfig(), nil)
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(tracerName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      config,
		log:      config.Logger,
		bus:      NewBus(config.Logger),
		caches:   config.Caches,
		compiler: config.Compiler,
		monitor:  config.Monitor,
		recorder: config.Recorder,
		tracer:   config.Tracer,
		slots:    semaphore.NewWeighted(int64(config.MaxWorkers)),
		ctx:      ctx,
		cancel:   cancel,
		records:  make(map[string]*record),
	}

	services := config.Capabilities
	services.Publisher = m
	m.dispatcher = capability.NewDispatcher(capability.NewService(services))
	return m
}

// Caches returns the manager's caches.
func (m *Manager) Caches() *Caches {
	return m.caches
}

// Monitor returns the memory monitor.
func (m *Manager) Monitor() *cache.Monitor {
	return m.monitor
}

// Subscribe registers handler on the manager's event bus.
func (m *Manager) Subscribe(handler Handler, types ...EventType) func() {
	return m.bus.Subscribe(handler, types...)
}

// RegisterPlugin installs pkg under its manifest name, replacing any plugin
// already registered under that name.
func (m *Manager) RegisterPlugin(pkg *PluginPackage, source string, warnings []Warning) (*InstalledPlugin, error) {
	id := PluginID(pkg.Manifest)
	if !IsValidName(id) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidManifest, pkg.Manifest.Name)
	}

	plugin := &InstalledPlugin{
		ID:          id,
		Manifest:    pkg.Manifest,
		Package:     pkg,
		Source:      source,
		InstalledAt: time.Now().UTC(),
		State:       StateRegistered,
		Warnings:    warnings,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	previous := m.records[id]
	m.records[id] = &record{id: id, exec: make(chan struct{}, 1), plugin: plugin}
	m.mu.Unlock()

	if previous != nil {
		m.retire(previous)
		m.caches.Purge(id)
		m.log.WithField("plugin", id).Info("Replaced installed plugin")
	}

	m.bus.Publish(EventPluginRegistered, id, plugin.snapshot())
	m.log.WithFields(logrus.Fields{"plugin": id, "version": pkg.Manifest.Version, "source": source}).Info("Registered plugin")
	return plugin.snapshot(), nil
}

// UnregisterPlugin unloads and removes a plugin.
func (m *Manager) UnregisterPlugin(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotInstalled)
	}

	if err := rec.lock(ctx); err != nil {
		// a command is still running; its host is torn down underneath it
		m.retire(rec)
	} else {
		m.retire(rec)
		rec.unlock()
	}

	m.caches.Purge(id)
	m.bus.Publish(EventPluginUnregistered, id, nil)
	m.log.WithField("plugin", id).Info("Unregistered plugin")
	return nil
}

// Reload stops the plugin's host and drops its cached views. The plugin stays
// installed and loads again on its next command.
func (m *Manager) Reload(ctx context.Context, id string) error {
	rec, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	m.retire(rec)
	m.setState(rec, StateRegistered, "")
	m.release(rec)

	n := m.caches.PurgeViews(id)
	m.bus.Publish(EventPluginReloaded, id, nil)
	m.log.WithFields(logrus.Fields{"plugin": id, "purged": n}).Info("Reloaded plugin")
	return nil
}

// retire unloads rec's host and marks the plugin unloaded.
func (m *Manager) retire(rec *record) {
	m.mu.Lock()
	w := rec.worker
	rec.worker = nil
	rec.plugin.State = StateUnloaded
	m.mu.Unlock()

	if w != nil {
		m.stopWorker(w)
	}
}

func (m *Manager) stopWorker(w *worker.Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), m.callTimeout())
	defer cancel()
	_ = w.Unload(ctx)

	m.slots.Release(1)
	m.mu.Lock()
	m.active--
	active := m.active
	m.mu.Unlock()
	m.recorder.WorkersActive(active)
}

func (m *Manager) callTimeout() time.Duration {
	if m.cfg.CallTimeout > 0 {
		return m.cfg.CallTimeout
	}
	return worker.DefaultCallTimeout
}

func (r *record) lock(ctx context.Context) error {
	select {
	case r.exec <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *record) tryLock() bool {
	select {
	case r.exec <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *record) unlock() {
	<-r.exec
}

// acquire locks rec for one operation.
func (m *Manager) acquire(ctx context.Context, id string) (*record, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	rec, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotInstalled)
	}

	if err := rec.lock(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	rec.inflight++
	rec.lastUsed = time.Now()
	m.mu.Unlock()
	return rec, nil
}

func (m *Manager) release(rec *record) {
	m.mu.Lock()
	rec.inflight--
	rec.lastUsed = time.Now()
	m.mu.Unlock()
	rec.unlock()
}

// Load starts the plugin's host if it is not running.
func (m *Manager) Load(ctx context.Context, id string) error {
	rec, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer m.release(rec)

	_, err = m.ensureWorker(ctx, rec)
	return err
}

// ensureWorker returns rec's running host, spawning and loading one when
// needed. rec must be locked.
func (m *Manager) ensureWorker(ctx context.Context, rec *record) (*worker.Worker, error) {
	m.mu.Lock()
	w := rec.worker
	pkg := rec.plugin.Package
	m.mu.Unlock()
	if w != nil {
		if !w.Unloaded() {
			return w, nil
		}
		m.dropWorker(rec, w, worker.ErrNotLoaded)
	}

	if err := m.reserveSlot(ctx, rec.id); err != nil {
		return nil, err
	}

	m.setState(rec, StateLoading, "")
	start := time.Now()

	w = worker.Spawn(m.ctx, worker.Options{
		PluginID:       rec.id,
		Compiler:       m.compiler,
		Templates:      m.caches.Templates,
		Dispatcher:     m.dispatcher,
		Listener:       m,
		CommandTimeout: m.cfg.CommandTimeout,
		CallTimeout:    m.cfg.CallTimeout,
		Logger:         m.log,
	})

	ready, err := w.Load(ctx, worker.LoadRequest{
		PluginID: rec.id,
		Commands: pkg.Manifest.CommandNames(),
		Files:    pkg.Code,
		Entry:    pkg.Manifest.Main,
	})
	m.recorder.PluginLoaded(rec.id, time.Since(start), err)
	m.mu.Lock()
	m.active++
	m.mu.Unlock()

	if err != nil {
		m.stopWorker(w)
		m.setState(rec, StateError, err.Error())
		m.bus.Publish(EventPluginError, rec.id, errorData(err))
		m.log.WithField("plugin", rec.id).WithError(err).Warn("Failed to load plugin")
		return nil, fmt.Errorf("failed to load %s: %w", rec.id, err)
	}

	m.mu.Lock()
	rec.worker = w
	active := m.active
	m.mu.Unlock()
	m.recorder.WorkersActive(active)

	m.setState(rec, StateReady, "")
	m.bus.Publish(EventPluginLoaded, rec.id, ready)
	m.log.WithFields(logrus.Fields{"plugin": rec.id, "entry": ready.Entry, "duration": time.Since(start)}).Info("Plugin loaded")
	return w, nil
}

// reserveSlot takes a host slot, unloading the least recently used idle host
// when none is free. Otherwise it waits for a release or for ctx.
func (m *Manager) reserveSlot(ctx context.Context, exclude string) error {
	if m.slots.TryAcquire(1) {
		return nil
	}
	if m.evictIdle(exclude) {
		m.log.Debug("Evicted idle host to free a slot")
	}
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a free host: %w", err)
	}
	return nil
}

// evictIdle unloads the least recently used host with nothing in flight.
func (m *Manager) evictIdle(exclude string) bool {
	for _, rec := range m.idleRecords(exclude, 0) {
		if !rec.tryLock() {
			continue
		}
		m.mu.Lock()
		w := rec.worker
		rec.worker = nil
		if w != nil {
			rec.plugin.State = StateRegistered
		}
		m.mu.Unlock()
		rec.unlock()

		if w != nil {
			m.stopWorker(w)
			m.log.WithField("plugin", rec.id).Debug("Unloaded idle host")
			return true
		}
	}
	return false
}

// idleRecords returns records with a running host and nothing in flight,
// least recently used first.
func (m *Manager) idleRecords(exclude string, idleFor time.Duration) []*record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var idle []*record
	for id, rec := range m.records {
		if id == exclude || rec.worker == nil || rec.inflight > 0 {
			continue
		}
		if idleFor > 0 && now.Sub(rec.lastUsed) < idleFor {
			continue
		}
		idle = append(idle, rec)
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastUsed.Before(idle[j].lastUsed) })
	return idle
}

func (m *Manager) setState(rec *record, state State, lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.plugin.State = state
	switch state {
	case StateError:
		rec.plugin.LastError = lastError
	case StateReady, StateRegistered:
		rec.plugin.LastError = ""
	}
}

// ExecuteCommand runs command of plugin id with a fresh correlation id.
func (m *Manager) ExecuteCommand(ctx context.Context, id, command string, args json.RawMessage) (*worker.CommandResult, error) {
	return m.Execute(ctx, Invocation{PluginID: id, Command: command, Args: args})
}

// Execute runs an invocation. The mode defaults to the manifest's mode for
// the command, or view.
func (m *Manager) Execute(ctx context.Context, inv Invocation) (result *worker.CommandResult, err error) {
	if inv.CorrelationID == "" {
		inv.CorrelationID = uuid.NewString()
	}

	ctx, span := m.tracer.Start(ctx, "plugins.Execute", trace.WithAttributes(
		attribute.String("plugin.id", inv.PluginID),
		attribute.String("plugin.command", inv.Command),
		attribute.String("correlation.id", inv.CorrelationID),
	))
	start := time.Now()
	defer func() {
		m.recorder.CommandExecuted(inv.PluginID, inv.Command, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rec, err := m.acquire(ctx, inv.PluginID)
	if err != nil {
		return nil, err
	}
	defer m.release(rec)

	m.mu.Lock()
	spec, declared := rec.plugin.Manifest.Command(inv.Command)
	m.mu.Unlock()
	if !declared && inv.Command != "default" {
		return nil, fmt.Errorf("%q: %w", inv.Command, worker.ErrCommandNotFound)
	}
	if inv.Mode == "" {
		inv.Mode = worker.ModeView
		if declared {
			inv.Mode = spec.ExecutionMode()
		}
	}
	span.SetAttributes(attribute.String("plugin.mode", inv.Mode))

	w, err := m.ensureWorker(ctx, rec)
	if err != nil {
		return nil, err
	}

	log := m.log.WithFields(logrus.Fields{"plugin": inv.PluginID, "command": inv.Command, "correlation_id": inv.CorrelationID})
	result, err = w.Execute(ctx, worker.ExecuteRequest{
		Command:       inv.Command,
		Mode:          inv.Mode,
		Args:          inv.Args,
		CorrelationID: inv.CorrelationID,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrClosed) {
			m.dropWorker(rec, w, err)
		}
		log.WithError(err).Debug("Command failed")
		return nil, err
	}

	if result.Kind == worker.ResultViewCreated {
		if cacheErr := m.caches.Components.Set(cacheKey(inv.PluginID, inv.Command), result); cacheErr != nil {
			log.Debugf("View not cached: %v", cacheErr)
		}
	}

	m.bus.Publish(EventCommandExecuted, inv.PluginID, map[string]any{
		"command":       inv.Command,
		"kind":          result.Kind,
		"rootId":        result.RootID,
		"correlationId": inv.CorrelationID,
		"durationMs":    time.Since(start).Milliseconds(),
	})
	log.Debug("Command executed")
	return result, nil
}

// dropWorker forgets a host whose channel closed underneath a call.
func (m *Manager) dropWorker(rec *record, w *worker.Worker, cause error) {
	m.mu.Lock()
	if rec.worker != w {
		m.mu.Unlock()
		return
	}
	rec.worker = nil
	rec.plugin.State = StateError
	rec.plugin.LastError = cause.Error()
	m.mu.Unlock()

	m.stopWorker(w)
}

// ViewEvent is a UI event forwarded to a mounted root.
type ViewEvent struct {
	HandlerID string          `json:"handlerId,omitempty"`
	Event     string          `json:"event,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// DispatchEvent forwards a UI event to the root rootID of plugin id.
func (m *Manager) DispatchEvent(ctx context.Context, id, rootID string, ev ViewEvent) (err error) {
	ctx, span := m.tracer.Start(ctx, "plugins.DispatchEvent", trace.WithAttributes(
		attribute.String("plugin.id", id),
		attribute.String("plugin.root", rootID),
	))
	defer func() {
		m.recorder.EventDispatched(id, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rec, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer m.release(rec)

	m.mu.Lock()
	w := rec.worker
	m.mu.Unlock()
	if w == nil || w.Unloaded() {
		return fmt.Errorf("%s: %w", id, worker.ErrNotLoaded)
	}

	err = w.DispatchEvent(ctx, worker.EventRequest{RootID: rootID, HandlerID: ev.HandlerID, Event: ev.Event, Detail: ev.Detail})
	if errors.Is(err, rpc.ErrClosed) {
		m.dropWorker(rec, w, err)
	}
	return err
}

// GetAvailableCommands lists the declared commands of every plugin, sorted by key.
func (m *Manager) GetAvailableCommands() []CommandInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var commands []CommandInfo
	for id, rec := range m.records {
		for _, c := range rec.plugin.Manifest.Commands {
			commands = append(commands, CommandInfo{
				Key:         cacheKey(id, c.Name),
				PluginID:    id,
				Command:     c.Name,
				Title:       c.Title,
				Description: c.Description,
				Mode:        c.ExecutionMode(),
			})
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Key < commands[j].Key })
	return commands
}

// Plugin returns a snapshot of plugin id.
func (m *Manager) Plugin(id string) (*InstalledPlugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return rec.plugin.snapshot(), true
}

// Plugins returns snapshots of every plugin, sorted by id.
func (m *Manager) Plugins() []*InstalledPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*InstalledPlugin, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.plugin.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns the lifecycle state of plugin id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return "", false
	}
	return rec.plugin.State, true
}

// ActiveWorkers returns the number of running hosts.
func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// LastView returns the cached result of the last view command run.
func (m *Manager) LastView(id, command string) (*worker.CommandResult, bool) {
	return m.caches.Components.Get(cacheKey(id, command))
}

// Asset returns a packaged asset, refilling the asset cache on a miss.
func (m *Manager) Asset(id, name string) ([]byte, bool) {
	key := cacheKey(id, name)
	if data, ok := m.caches.Assets.Get(key); ok {
		return data, true
	}

	m.mu.Lock()
	rec, ok := m.records[id]
	var data []byte
	if ok {
		data, ok = rec.plugin.Package.Assets[name]
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	if err := m.caches.Assets.Set(key, data, cache.WithSize(int64(len(data)))); err != nil {
		m.log.WithField("plugin", id).Debugf("Asset %s not cached: %v", name, err)
	}
	return data, true
}

// OptimizeReport summarizes one Optimize pass.
type OptimizeReport struct {
	Sample   cache.MemorySample `json:"sample"`
	Critical bool               `json:"critical"`
	Expired  int                `json:"expired"`
	Evicted  int                `json:"evicted"`
	Unloaded int                `json:"unloaded"`
}

// Optimize purges expired cache entries and, when memory is critical, halves
// every cache and unloads idle hosts. Hosts idle longer than IdleTimeout are
// unloaded regardless.
func (m *Manager) Optimize(ctx context.Context) OptimizeReport {
	report := OptimizeReport{Sample: m.monitor.Sample()}
	report.Expired = m.caches.PurgeExpired()

	var idle []*record
	if m.monitor.IsCritical() {
		report.Critical = true
		report.Evicted = m.caches.Shrink(0.5)
		idle = m.idleRecords("", 0)
	} else if m.cfg.IdleTimeout > 0 {
		idle = m.idleRecords("", m.cfg.IdleTimeout)
	}

	for _, rec := range idle {
		if ctx.Err() != nil {
			break
		}
		if !rec.tryLock() {
			continue
		}
		m.mu.Lock()
		w := rec.worker
		rec.worker = nil
		if w != nil {
			rec.plugin.State = StateRegistered
		}
		m.mu.Unlock()
		rec.unlock()

		if w != nil {
			m.stopWorker(w)
			report.Unloaded++
		}
	}

	entry := m.log.WithFields(logrus.Fields{
		"utilization": report.Sample.Utilization,
		"expired":     report.Expired,
		"evicted":     report.Evicted,
		"unloaded":    report.Unloaded,
	})
	if report.Critical {
		entry.Warn("Memory critical, caches shrunk")
	} else {
		entry.Debug("Optimize pass complete")
	}
	return report
}

// Shutdown unloads every host. Later operations fail with ErrShuttingDown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	recs := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	m.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, rec := range recs {
		rec := rec
		eg.Go(func() error {
			m.mu.Lock()
			w := rec.worker
			rec.worker = nil
			rec.plugin.State = StateUnloaded
			m.mu.Unlock()
			if w == nil {
				return nil
			}
			err := w.Unload(ctx)
			m.slots.Release(1)
			m.mu.Lock()
			m.active--
			m.mu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to unload %s: %w", rec.id, err)
			}
			return nil
		})
	}

	err := eg.Wait()
	m.cancel()
	m.recorder.WorkersActive(m.ActiveWorkers())
	m.log.Infof("Plugin manager stopped (%d plugins)", len(recs))
	return err
}

// WorkerReady implements worker.Listener.
func (m *Manager) WorkerReady(pluginID string, ready worker.Ready) {
	m.log.WithField("plugin", pluginID).Debugf("Host ready with commands %v", ready.Commands)
}

// WorkerLog implements worker.Listener.
func (m *Manager) WorkerLog(pluginID, level, message string) {
	m.bus.Publish(EventLog, pluginID, map[string]string{"level": level, "message": message})
}

// WorkerEvent implements worker.Listener.
func (m *Manager) WorkerEvent(pluginID string, ev worker.Event) {
	m.bus.Publish(EventViewEvent, pluginID, ev)
}

// WorkerError implements worker.Listener.
func (m *Manager) WorkerError(pluginID string, err error) {
	m.mu.Lock()
	if rec, ok := m.records[pluginID]; ok {
		rec.plugin.LastError = err.Error()
	}
	m.mu.Unlock()
	m.bus.Publish(EventPluginError, pluginID, errorData(err))
}

// Publish implements capability.Publisher, forwarding host API events to the bus.
func (m *Manager) Publish(pluginID, kind string, payload any) {
	var t EventType
	switch kind {
	case capability.EventNavigation:
		t = EventNavigation
	case capability.EventToast:
		t = EventToast
	case capability.EventHUD:
		t = EventHUD
	case capability.EventOpen:
		t = EventOpen
	case capability.EventPaste:
		t = EventPaste
	default:
		t = EventType(kind)
	}
	m.bus.Publish(t, pluginID, payload)
}

func errorData(err error) map[string]string {
	data := map[string]string{"message": err.Error()}
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		data["code"] = remote.Code
		data["message"] = remote.Message
		if remote.Stack != "" {
			data["stack"] = remote.Stack
		}
	}
	return data
}

func (p *InstalledPlugin) snapshot() *InstalledPlugin {
	cp := *p
	cp.Warnings = append([]Warning(nil), p.Warnings...)
	return &cp
}
