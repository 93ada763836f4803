package worker

// prelude builds the API module object from the native host bindings and the
// compiler's component names. Element construction lives here so plugin code
// compiled for React-style runtimes works unchanged.
const prelude = `(function (host, componentNames) {
  "use strict";
  var Fragment = "Fragment";
  var api = {};

  componentNames.forEach(function (name) {
    var parts = name.split(".");
    var obj = api;
    for (var i = 0; i < parts.length; i++) {
      if (!obj[parts[i]]) {
        obj[parts[i]] = { __fcType: parts.slice(0, i + 1).join(".") };
      }
      obj = obj[parts[i]];
    }
  });

  function typeName(type) {
    if (type === undefined || type === null) return Fragment;
    if (typeof type === "string") return type;
    if (type.__fcType) return type.__fcType;
    throw new TypeError("invalid element type: " + String(type));
  }

  function createElement(type, props) {
    var children = Array.prototype.slice.call(arguments, 2);
    var p = {};
    if (props) {
      for (var k in props) {
        if (k !== "children") p[k] = props[k];
      }
      if (children.length === 0 && props.children !== undefined) {
        children = Array.isArray(props.children) ? props.children : [props.children];
      }
    }
    if (typeof type === "function") {
      if (children.length) p.children = children.length === 1 ? children[0] : children;
      return type(p);
    }
    return { type: typeName(type), props: p, children: children };
  }

  function jsx(type, props) {
    return createElement(type, props);
  }

  function Cache() {}
  Cache.prototype.get = function (key) {
    var v = host.cache.get(key);
    return v === null ? undefined : v;
  };
  Cache.prototype.has = function (key) { return host.cache.get(key) !== null; };
  Cache.prototype.set = function (key, value) { host.cache.set(key, String(value)); };
  Cache.prototype.remove = function (key) { host.cache.remove(key); };
  Cache.prototype.all = function () { return host.cache.all(); };
  Cache.prototype.clear = function () { host.cache.clear(); };

  function showToast(options, title, message) {
    if (typeof options === "string") {
      options = { style: options, title: title, message: message };
    }
    return host.showToast(options || {});
  }

  var names = new Proxy({}, { get: function (_, key) { return String(key); } });

  var members = {
    Fragment: Fragment,
    createElement: createElement,
    jsx: jsx,
    jsxs: jsx,
    useState: function (initial) {
      return [typeof initial === "function" ? initial() : initial, function () {}];
    },
    useEffect: function () {},
    useMemo: function (fn) { return fn(); },
    useCallback: function (fn) { return fn; },
    useRef: function (value) { return { current: value }; },
    useNavigation: function () { return { push: host.push, pop: host.pop }; },
    Toast: { Style: { Success: "success", Failure: "failure", Animated: "animated" } },
    showToast: showToast,
    showHUD: host.showHUD,
    popToRoot: host.popToRoot,
    closeMainWindow: host.clear,
    open: host.open,
    getApplications: host.getApplications,
    openApplication: host.openApplication,
    Clipboard: host.clipboard,
    LocalStorage: host.localStorage,
    Cache: Cache,
    environment: host.environment,
    registerCommand: host.registerCommand,
    events: host.events,
    Icon: names,
    Color: names
  };
  for (var key in members) api[key] = members[key];
  api.default = api;
  return api;
})`
