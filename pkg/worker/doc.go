// Package worker runs plugin code in isolated execution hosts.
//
// Each plugin gets its own Host: a goja interpreter owned by a single
// goroutine, reachable only through rpc envelopes on an in-process channel.
// The host evaluates the package's entry module with a small CommonJS loader,
// exposes the launcher API to plugin code, and turns command results into
// serialized views through the ui compiler and codec.
//
// The host side holds a Worker, which forwards load, execute and event
// requests and serves the capability calls the plugin makes:
//
//	w := worker.Spawn(ctx, worker.Options{
//		PluginID:   "todo",
//		Dispatcher: capability.NewDispatcher(service),
//		Listener:   manager,
//	})
//	ready, err := w.Load(ctx, worker.LoadRequest{Files: files})
//	result, err := w.Execute(ctx, worker.ExecuteRequest{Command: "default"})
//
// Commands and event handlers run under a deadline. A command that exceeds
// it is interrupted and fails with rpc.ErrTimeout; the host stays usable.
package worker
