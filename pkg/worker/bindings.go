package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/platinummonkey/fleet/pkg/capability"
	"github.com/platinummonkey/fleet/pkg/rpc"
)

type nativeFunc = func(goja.FunctionCall) goja.Value

// installGlobals adds console and timers to the runtime.
func (h *Host) installGlobals() {
	vm := h.vm

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			h.consoleLog(level, call.Arguments)
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)

	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("setTimeout requires a function"))
		}
		return vm.ToValue(h.timers.schedule(call.Argument(1).ToInteger(), fn, call.Arguments[min(2, len(call.Arguments)):]))
	})
	_ = vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		h.timers.cancel(call.Argument(0).ToInteger())
		return goja.Undefined()
	})
}

func (h *Host) consoleLog(level string, args []goja.Value) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = h.stringify(arg)
	}
	message := strings.Join(parts, " ")

	switch level {
	case "log", "debug":
		level = "info"
	}
	if err := h.bridge.Notify(rpc.TypeLog, rpc.LogPayload{Level: level, Message: message}); err != nil {
		h.log.Debugf("Dropped console output: %v", err)
	}
}

func (h *Host) stringify(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return fmt.Sprint(v)
	}
	if _, isObj := v.(*goja.Object); isObj {
		if _, isFn := goja.AssertFunction(v); !isFn {
			if data, err := json.Marshal(v.Export()); err == nil {
				return string(data)
			}
		}
	}
	return v.String()
}

// apiModule builds the object returned by require("@fleet-chat/api").
func (h *Host) apiModule(env capability.Environment) (goja.Value, error) {
	vm := h.vm

	native := vm.NewObject()
	set := func(obj *goja.Object, name string, fn nativeFunc) {
		_ = obj.Set(name, fn)
	}
	object := func(methods map[string]nativeFunc) *goja.Object {
		obj := vm.NewObject()
		for name, fn := range methods {
			set(obj, name, fn)
		}
		return obj
	}

	none := func(err error) (any, error) { return nil, err }

	set(native, "showToast", func(call goja.FunctionCall) goja.Value {
		var toast capability.Toast
		h.decode(call.Argument(0), &toast)
		return h.pending(func() (any, error) { return none(h.api.System().ShowToast(h.callContext(), toast)) })
	})
	set(native, "showHUD", func(call goja.FunctionCall) goja.Value {
		text := call.Argument(0).String()
		return h.pending(func() (any, error) { return none(h.api.System().ShowHUD(h.callContext(), text)) })
	})
	set(native, "push", func(call goja.FunctionCall) goja.Value {
		view := call.Argument(0).Export()
		return h.pending(func() (any, error) { return none(h.push(h.callContext(), view)) })
	})
	set(native, "pop", func(goja.FunctionCall) goja.Value {
		return h.pending(func() (any, error) { return none(h.api.Navigation().Pop(h.callContext())) })
	})
	set(native, "popToRoot", func(goja.FunctionCall) goja.Value {
		return h.pending(func() (any, error) { return none(h.api.Navigation().PopToRoot(h.callContext())) })
	})
	set(native, "clear", func(goja.FunctionCall) goja.Value {
		return h.pending(func() (any, error) { return none(h.api.Navigation().Clear(h.callContext())) })
	})
	set(native, "open", func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).String()
		return h.pending(func() (any, error) { return none(h.api.Navigation().Open(h.callContext(), target)) })
	})
	set(native, "getApplications", func(goja.FunctionCall) goja.Value {
		return h.pending(func() (any, error) {
			apps, err := h.api.System().GetApplications(h.callContext())
			if err != nil {
				return nil, err
			}
			return h.toValue(apps), nil
		})
	})
	set(native, "openApplication", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		return h.pending(func() (any, error) { return none(h.api.System().OpenApplication(h.callContext(), name)) })
	})

	_ = native.Set("clipboard", object(map[string]nativeFunc{
		"copy": func(call goja.FunctionCall) goja.Value {
			text := h.text(call.Argument(0))
			return h.pending(func() (any, error) { return none(h.api.Clipboard().Copy(h.callContext(), text)) })
		},
		"paste": func(call goja.FunctionCall) goja.Value {
			text := h.text(call.Argument(0))
			return h.pending(func() (any, error) { return none(h.api.Clipboard().Paste(h.callContext(), text)) })
		},
		"readText": func(goja.FunctionCall) goja.Value {
			return h.pending(func() (any, error) { return h.api.Clipboard().ReadText(h.callContext()) })
		},
		"clear": func(goja.FunctionCall) goja.Value {
			return h.pending(func() (any, error) { return none(h.api.Clipboard().Clear(h.callContext())) })
		},
	}))

	_ = native.Set("localStorage", h.storageObject(h.api.LocalStorage(), storageNames{"getItem", "setItem", "removeItem", "allItems"}, goja.Undefined(), true))
	_ = native.Set("cache", h.storageObject(h.api.Cache(), storageNames{"get", "set", "remove", "all"}, goja.Null(), false))

	set(native, "registerCommand", func(call goja.FunctionCall) goja.Value {
		name, fn := call.Argument(0).String(), call.Argument(1)
		if name == "" || !isCallable(fn) {
			panic(vm.NewTypeError("registerCommand requires a name and a function"))
		}
		h.commands[name] = fn
		return goja.Undefined()
	})

	_ = native.Set("events", object(map[string]nativeFunc{
		"emit": func(call goja.FunctionCall) goja.Value {
			h.emit(call.Argument(0).String(), call.Argument(1).Export())
			return goja.Undefined()
		},
		"on": func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				panic(vm.NewTypeError("events.on requires a function"))
			}
			root := h.activeRoot()
			if root == "" {
				return vm.ToValue(false)
			}
			return vm.ToValue(h.registry.Listen(root, call.Argument(0).String(), fn))
		},
	}))

	_ = native.Set("environment", h.toValue(env))

	build, err := vm.RunScript("fleet:prelude", prelude)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate prelude: %w", err)
	}
	fn, ok := goja.AssertFunction(build)
	if !ok {
		return nil, fmt.Errorf("prelude is not a function")
	}

	names := h.compiler.Components()
	components := make([]any, len(names))
	for i, name := range names {
		components[i] = name
	}
	return fn(goja.Undefined(), native, vm.ToValue(components))
}

type storageNames struct{ get, set, remove, all string }

// storageObject binds store under the given method names. Async objects
// return promises like every other capability; the Cache class reads
// synchronously.
func (h *Host) storageObject(store capability.Storage, names storageNames, missing goja.Value, async bool) *goja.Object {
	obj := h.vm.NewObject()
	bind := func(name string, fn func(call goja.FunctionCall) (any, error)) {
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			if async {
				return h.pending(func() (any, error) { return fn(call) })
			}
			v, err := fn(call)
			h.check(err)
			return h.vm.ToValue(v)
		})
	}

	bind(names.get, func(call goja.FunctionCall) (any, error) {
		value, found, err := store.GetItem(h.callContext(), call.Argument(0).String())
		if err != nil || !found {
			return missing, err
		}
		return value, nil
	})
	bind(names.set, func(call goja.FunctionCall) (any, error) {
		return nil, store.SetItem(h.callContext(), call.Argument(0).String(), h.text(call.Argument(1)))
	})
	bind(names.remove, func(call goja.FunctionCall) (any, error) {
		return nil, store.RemoveItem(h.callContext(), call.Argument(0).String())
	})
	bind(names.all, func(goja.FunctionCall) (any, error) {
		items, err := store.AllItems(h.callContext())
		if err != nil {
			return nil, err
		}
		return h.toValue(items), nil
	})
	bind("clear", func(goja.FunctionCall) (any, error) {
		return nil, store.Clear(h.callContext())
	})
	return obj
}

// pending runs a capability call and returns a promise settled with its
// outcome. The call itself blocks on the RPC round trip, so the promise is
// never observed pending.
func (h *Host) pending(call func() (any, error)) goja.Value {
	promise, resolve, reject := h.vm.NewPromise()
	value, err := call()
	if err != nil {
		_ = reject(h.errorValue(err))
	} else {
		if value == nil {
			value = goja.Undefined()
		}
		_ = resolve(value)
	}
	return h.vm.ToValue(promise)
}

// errorValue is the JS value err is thrown or rejected as.
func (h *Host) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	return h.vm.NewGoError(err)
}

// check throws err into the interpreter.
func (h *Host) check(err error) {
	if err != nil {
		throw(h.vm, err)
	}
}

// decode converts a JS value into out through JSON.
func (h *Host) decode(v goja.Value, out any) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	data, err := json.Marshal(v.Export())
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		panic(h.vm.NewTypeError(err.Error()))
	}
}

// toValue converts a Go value into plain JS data through JSON.
func (h *Host) toValue(v any) goja.Value {
	data, err := json.Marshal(v)
	if err != nil {
		throw(h.vm, err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		throw(h.vm, err)
	}
	return h.vm.ToValue(plain)
}

func (h *Host) text(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if _, isObj := v.(*goja.Object); isObj {
		return h.stringify(v)
	}
	return v.String()
}

func (h *Host) callContext() context.Context {
	if h.cmdCtx != nil {
		return h.cmdCtx
	}
	return h.ctx
}
