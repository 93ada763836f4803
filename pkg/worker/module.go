package worker

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// Module names that resolve to the host API object.
var apiModules = []string{
	"@fleet-chat/api",
	"@fleet-chat/raycast-api",
	"@raycast/api",
	"react",
	"react/jsx-runtime",
}

// entryCandidates are tried in order before falling back to the first .js file.
var entryCandidates = []string{"plugin.js", "index.js", "src/index.js", "dist/index.js"}

var resolveExtensions = []string{"", ".js", ".mjs", ".cjs", ".json", "/index.js"}

// normalizeFiles cleans archive paths so lookups are independent of how the
// package was zipped.
func normalizeFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for name, src := range files {
		out[cleanPath(name)] = src
	}
	return out
}

func cleanPath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// resolveEntry picks the module entry file.
func resolveEntry(files map[string]string, preferred string) (string, error) {
	if preferred != "" {
		if _, ok := files[cleanPath(preferred)]; ok {
			return cleanPath(preferred), nil
		}
		return "", fmt.Errorf("entry %q not found in package", preferred)
	}
	for _, candidate := range entryCandidates {
		if _, ok := files[candidate]; ok {
			return candidate, nil
		}
	}

	var scripts []string
	for name := range files {
		if strings.HasSuffix(name, ".js") {
			scripts = append(scripts, name)
		}
	}
	if len(scripts) == 0 {
		return "", fmt.Errorf("no JavaScript entry file in package")
	}
	sort.Strings(scripts)
	return scripts[0], nil
}

// moduleLoader implements CommonJS require over a package's code map.
type moduleLoader struct {
	vm       *goja.Runtime
	files    map[string]string
	builtins map[string]goja.Value
	modules  map[string]*goja.Object
}

func newModuleLoader(vm *goja.Runtime, files map[string]string, api goja.Value) *moduleLoader {
	builtins := make(map[string]goja.Value, len(apiModules))
	for _, name := range apiModules {
		builtins[name] = api
	}
	return &moduleLoader{
		vm:       vm,
		files:    files,
		builtins: builtins,
		modules:  make(map[string]*goja.Object),
	}
}

func (l *moduleLoader) require(from, spec string) (goja.Value, error) {
	if v, ok := l.builtins[spec]; ok {
		return v, nil
	}
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") && !strings.HasPrefix(spec, "/") {
		return nil, fmt.Errorf("cannot find module %q", spec)
	}

	base := cleanPath(path.Join(path.Dir(from), spec))
	for _, ext := range resolveExtensions {
		if _, ok := l.files[base+ext]; ok {
			return l.load(base + ext)
		}
	}
	return nil, fmt.Errorf("cannot find module %q from %s", spec, from)
}

func (l *moduleLoader) load(name string) (goja.Value, error) {
	if m, ok := l.modules[name]; ok {
		return m.Get("exports"), nil
	}

	module := l.vm.NewObject()
	exports := l.vm.NewObject()
	_ = module.Set("exports", exports)
	l.modules[name] = module

	if strings.HasSuffix(name, ".json") {
		var data any
		if err := json.Unmarshal([]byte(l.files[name]), &data); err != nil {
			delete(l.modules, name)
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		_ = module.Set("exports", l.vm.ToValue(data))
		return module.Get("exports"), nil
	}

	// the wrapper header shares the first source line so stack positions match the file
	src := "(function (exports, require, module, __filename, __dirname) { var __fcDefault = function (m) { return m && m.default !== undefined ? m.default : m; }; " +
		transformModule(l.files[name]) + "\n})"
	fn, err := l.vm.RunScript(name, src)
	if err != nil {
		delete(l.modules, name)
		return nil, err
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		delete(l.modules, name)
		return nil, fmt.Errorf("failed to wrap module %s", name)
	}

	requireFn := l.vm.ToValue(func(c goja.FunctionCall) goja.Value {
		v, err := l.require(name, c.Argument(0).String())
		if err != nil {
			throw(l.vm, err)
		}
		return v
	})

	if _, err := call(goja.Undefined(), exports, requireFn, module, l.vm.ToValue(name), l.vm.ToValue(path.Dir(name))); err != nil {
		delete(l.modules, name)
		return nil, err
	}
	return module.Get("exports"), nil
}

// throw raises err inside the interpreter, preserving thrown JS values.
func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(vm.NewGoError(err))
}

var (
	reImportDefaultNamed = regexp.MustCompile(`(?m)^([ \t]*)import\s+([\w$]+)\s*,\s*\{([^}]*)\}\s*from\s*['"]([^'"]+)['"];?`)
	reImportNamespace    = regexp.MustCompile(`(?m)^([ \t]*)import\s+\*\s+as\s+([\w$]+)\s+from\s*['"]([^'"]+)['"];?`)
	reImportNamed        = regexp.MustCompile(`(?m)^([ \t]*)import\s*\{([^}]*)\}\s*from\s*['"]([^'"]+)['"];?`)
	reImportDefault      = regexp.MustCompile(`(?m)^([ \t]*)import\s+([\w$]+)\s+from\s*['"]([^'"]+)['"];?`)
	reImportBare         = regexp.MustCompile(`(?m)^([ \t]*)import\s*['"]([^'"]+)['"];?`)
	reExportDefaultDecl  = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+((?:async\s+)?function\s*\*?|class)\s+([\w$]+)`)
	reExportDefault      = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	reExportDecl         = regexp.MustCompile(`(?m)^([ \t]*)export\s+((?:async\s+)?function\s*\*?|class|const|let|var)\s+([\w$]+)`)
	reExportStarFrom     = regexp.MustCompile(`(?m)^([ \t]*)export\s*\*\s*from\s*['"]([^'"]+)['"];?`)
	reExportFrom         = regexp.MustCompile(`(?m)^([ \t]*)export\s*\{([^}]*)\}\s*from\s*['"]([^'"]+)['"];?`)
	reExportList         = regexp.MustCompile(`(?m)^([ \t]*)export\s*\{([^}]*)\};?`)
)

type binding struct {
	local, exported string
}

// parseBindings splits "a, b as c" into its names.
func parseBindings(list string) []binding {
	var out []binding
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) == 3 && fields[1] == "as" {
			out = append(out, binding{local: fields[0], exported: fields[2]})
			continue
		}
		out = append(out, binding{local: fields[0], exported: fields[0]})
	}
	return out
}

func destructure(list string) string {
	bindings := parseBindings(list)
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		if b.local == b.exported {
			parts[i] = b.local
		} else {
			parts[i] = b.local + ": " + b.exported
		}
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// transformModule rewrites ES module syntax into CommonJS. Only statement
// forms at the start of a line are recognized.
func transformModule(src string) string {
	var tail []string
	tmp := 0

	replace := func(re *regexp.Regexp, fn func(m []string) string) {
		src = re.ReplaceAllStringFunc(src, func(match string) string {
			return fn(re.FindStringSubmatch(match))
		})
	}

	replace(reImportDefaultNamed, func(m []string) string {
		tmp++
		mod := fmt.Sprintf("__fcMod%d", tmp)
		return fmt.Sprintf("%sconst %s = require(%q); const %s = __fcDefault(%s); const %s = %s;",
			m[1], mod, m[4], m[2], mod, destructure(m[3]), mod)
	})
	replace(reImportNamespace, func(m []string) string {
		return fmt.Sprintf("%sconst %s = require(%q);", m[1], m[2], m[3])
	})
	replace(reImportNamed, func(m []string) string {
		return fmt.Sprintf("%sconst %s = require(%q);", m[1], destructure(m[2]), m[3])
	})
	replace(reImportDefault, func(m []string) string {
		return fmt.Sprintf("%sconst %s = __fcDefault(require(%q));", m[1], m[2], m[3])
	})
	replace(reImportBare, func(m []string) string {
		return fmt.Sprintf("%srequire(%q);", m[1], m[2])
	})

	replace(reExportDefaultDecl, func(m []string) string {
		tail = append(tail, fmt.Sprintf("exports.default = %s;", m[3]))
		return m[1] + m[2] + " " + m[3]
	})
	replace(reExportDefault, func(m []string) string {
		return m[1] + "exports.default = "
	})
	replace(reExportDecl, func(m []string) string {
		tail = append(tail, fmt.Sprintf("exports.%s = %s;", m[3], m[3]))
		return m[1] + m[2] + " " + m[3]
	})
	replace(reExportStarFrom, func(m []string) string {
		return fmt.Sprintf("%sObject.assign(exports, require(%q));", m[1], m[2])
	})
	replace(reExportFrom, func(m []string) string {
		tmp++
		mod := fmt.Sprintf("__fcMod%d", tmp)
		var b strings.Builder
		fmt.Fprintf(&b, "%sconst %s = require(%q);", m[1], mod, m[3])
		for _, bind := range parseBindings(m[2]) {
			fmt.Fprintf(&b, " exports.%s = %s.%s;", bind.exported, mod, bind.local)
		}
		return b.String()
	})
	replace(reExportList, func(m []string) string {
		var b strings.Builder
		b.WriteString(m[1])
		for _, bind := range parseBindings(m[2]) {
			fmt.Fprintf(&b, "exports.%s = %s; ", bind.exported, bind.local)
		}
		return strings.TrimRight(b.String(), " ")
	})

	if len(tail) > 0 {
		src += "\n" + strings.Join(tail, "\n")
	}
	return src
}
