package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fleet/pkg/async"
	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/ui"
)

// DefaultCallTimeout bounds a capability call made by plugin code.
const DefaultCallTimeout = 10 * time.Second

// Listener receives the notifications a worker sends outside of replies.
type Listener interface {
	WorkerReady(pluginID string, ready Ready)
	WorkerLog(pluginID, level, message string)
	WorkerEvent(pluginID string, event Event)
	WorkerError(pluginID string, err error)
}

// Options configures a Worker
type Options struct {
	PluginID       string
	Compiler       *ui.Compiler
	Templates      *cache.Store[ui.Template]
	Dispatcher     *capability.Dispatcher
	Listener       Listener
	CommandTimeout time.Duration
	CallTimeout    time.Duration
	Buffer         int
	Logger         *logrus.Logger
}

// Worker is the host-side handle of an execution Host. It forwards commands
// and events over the channel and serves the plugin's capability calls.
type Worker struct {
	pluginID       string
	bridge         *rpc.Bridge
	host           *Host
	dispatcher     *capability.Dispatcher
	listener       Listener
	commandTimeout time.Duration
	callTimeout    time.Duration
	log            *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	unloaded bool
}

// Spawn starts a Host for opts.PluginID connected to a new Worker handle.
func Spawn(ctx context.Context, opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}

	ctx, cancel := context.WithCancel(ctx)
	hostEnd, workerEnd := rpc.Pipe(opts.Buffer)

	w := &Worker{
		pluginID:       opts.PluginID,
		dispatcher:     opts.Dispatcher,
		listener:       opts.Listener,
		commandTimeout: opts.CommandTimeout,
		callTimeout:    opts.CallTimeout,
		log:            opts.Logger.WithField("plugin", opts.PluginID),
		ctx:            ctx,
		cancel:         cancel,
	}
	w.bridge = rpc.NewBridge(hostEnd,
		rpc.WithHandler(w.handle),
		rpc.WithDefaultTimeout(opts.CommandTimeout),
		rpc.WithLogger(w.log.WithField("side", "host")),
	)
	w.host = NewHost(workerEnd, Config{
		PluginID:       opts.PluginID,
		Compiler:       opts.Compiler,
		Templates:      opts.Templates,
		CommandTimeout: opts.CommandTimeout,
		CallTimeout:    opts.CallTimeout,
		Logger:         opts.Logger,
	})

	w.bridge.Start(ctx)
	w.host.Start(ctx)
	return w
}

// PluginID returns the id of the plugin this worker runs.
func (w *Worker) PluginID() string {
	return w.pluginID
}

// Done is closed once the worker's channel is closed.
func (w *Worker) Done() <-chan struct{} {
	return w.bridge.Done()
}

// Pending returns the number of requests awaiting the host.
func (w *Worker) Pending() int {
	return w.bridge.Pending()
}

func (w *Worker) handle(env rpc.Envelope) {
	switch env.Type {
	case rpc.TypeAPICall:
		w.serve(env)
	case rpc.TypeReady:
		var ready Ready
		if err := env.Decode(&ready); err == nil && w.listener != nil {
			w.listener.WorkerReady(w.pluginID, ready)
		}
	case rpc.TypeLog:
		var entry rpc.LogPayload
		if err := env.Decode(&entry); err != nil {
			return
		}
		w.logPlugin(entry)
		if w.listener != nil {
			w.listener.WorkerLog(w.pluginID, entry.Level, entry.Message)
		}
	case rpc.TypeEvent:
		var ev Event
		if err := env.Decode(&ev); err != nil {
			w.log.Debugf("Malformed event: %v", err)
			return
		}
		if w.listener != nil {
			w.listener.WorkerEvent(w.pluginID, ev)
		}
	case rpc.TypeError:
		err := rpc.FromPayload(env.Error)
		w.log.WithError(err).Warn("Plugin reported an error")
		if w.listener != nil && err != nil {
			w.listener.WorkerError(w.pluginID, err)
		}
	default:
		w.log.Debugf("Ignoring %s message", env.Type)
	}
}

func (w *Worker) logPlugin(entry rpc.LogPayload) {
	log := w.log.WithField("source", "console")
	switch entry.Level {
	case "error":
		log.Error(entry.Message)
	case "warn":
		log.Warn(entry.Message)
	default:
		log.Info(entry.Message)
	}
}

// serve answers a capability call off the read loop.
func (w *Worker) serve(env rpc.Envelope) {
	var call rpc.CallPayload
	if err := env.Decode(&call); err != nil {
		_ = w.bridge.Reply(env, nil, rpc.NewError("InvalidArguments", err.Error()))
		return
	}

	async.SafeGo(w.ctx, w.callTimeout, "capability "+call.Method, func(ctx context.Context) error {
		var (
			result any
			err    error
		)
		if w.dispatcher == nil {
			err = rpc.NewError(rpc.CodeUnknownMethod, "no capabilities available")
		} else {
			result, err = w.dispatcher.Dispatch(capability.WithPlugin(ctx, w.pluginID), call.Method, call.Args)
		}
		if err != nil {
			w.log.WithField("method", call.Method).Debugf("Capability call failed: %v", err)
		}
		return w.bridge.Reply(env, result, err)
	})
}

// call waits slightly longer than the host's own deadline so the host
// reports its timeout first.
func (w *Worker) call(ctx context.Context, typ rpc.MessageType, payload any) (json.RawMessage, error) {
	if w.isUnloaded() {
		return nil, rpc.ErrClosed
	}
	return w.bridge.Call(ctx, typ, payload, rpc.WithTimeout(w.commandTimeout+w.callTimeout))
}

// Load evaluates the package's module in the host.
func (w *Worker) Load(ctx context.Context, req LoadRequest) (*Ready, error) {
	if req.PluginID == "" {
		req.PluginID = w.pluginID
	}
	raw, err := w.call(ctx, rpc.TypeLoad, req)
	if err != nil {
		return nil, err
	}
	var ready Ready
	if err := json.Unmarshal(raw, &ready); err != nil {
		return nil, fmt.Errorf("failed to decode ready: %w", err)
	}
	return &ready, nil
}

// Execute runs a command and returns its result.
func (w *Worker) Execute(ctx context.Context, req ExecuteRequest) (*CommandResult, error) {
	raw, err := w.call(ctx, rpc.TypeExecute, req)
	if err != nil {
		return nil, err
	}
	var result CommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode command result: %w", err)
	}
	return &result, nil
}

// DispatchEvent delivers a UI event to a mounted root.
func (w *Worker) DispatchEvent(ctx context.Context, req EventRequest) error {
	_, err := w.call(ctx, rpc.TypeEvent, req)
	return err
}

// Unload tears the host down. It is safe to call more than once; later
// calls return nil without contacting the host.
func (w *Worker) Unload(ctx context.Context) error {
	w.mu.Lock()
	if w.unloaded {
		w.mu.Unlock()
		return nil
	}
	w.unloaded = true
	w.mu.Unlock()

	_, err := w.bridge.Call(ctx, rpc.TypeUnload, nil, rpc.WithTimeout(w.callTimeout))
	if errors.Is(err, rpc.ErrClosed) {
		err = nil
	}
	if err != nil {
		w.log.WithError(err).Warn("Host did not acknowledge unload")
	}

	_ = w.bridge.Close()
	_ = w.host.Close()
	w.cancel()
	return nil
}

// Unloaded reports whether Unload has been called.
func (w *Worker) Unloaded() bool {
	return w.isUnloaded()
}

func (w *Worker) isUnloaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unloaded
}
