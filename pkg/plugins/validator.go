package plugins

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fleet/pkg/capability"
)

// Validator inspects a decoded package for findings that do not prevent
// loading: unknown permissions, suspicious code and hardcoded secrets.
type Validator struct {
	allowedPermissions map[string]bool
	dangerousModules   []string
	logger             *logrus.Logger
}

var (
	secretPatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"API Key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']([a-zA-Z0-9]{20,})["']`)},
		{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']([^"']{8,})["']`)},
		{"Token", regexp.MustCompile(`(?i)(token|auth[_-]?token)\s*[:=]\s*["']([a-zA-Z0-9]{20,})["']`)},
		{"AWS Key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{"Private Key", regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`)},
	}

	suspiciousPatterns = []struct {
		pattern     *regexp.Regexp
		description string
	}{
		{regexp.MustCompile(`\beval\s*\(`), "uses eval"},
		{regexp.MustCompile(`\bnew\s+Function\s*\(`), "constructs functions from strings"},
		{regexp.MustCompile(`(?i)(sh\s+-c|bash\s+-c|cmd\.exe)`), "references shell command execution"},
	}
)

// NewValidator creates a validator. Permissions are the capability namespaces
// the host exposes.
func NewValidator(logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}

	allowed := make(map[string]bool)
	for _, method := range capability.Methods() {
		if ns, _, ok := strings.Cut(method, "."); ok {
			allowed[ns] = true
		}
	}

	return &Validator{
		allowedPermissions: allowed,
		// Node built-ins are unavailable in the host; requiring one fails at runtime
		dangerousModules: []string{"child_process", "fs", "net", "http", "https", "os", "vm", "worker_threads"},
		logger:           logger,
	}
}

// Validate returns the warnings for pkg, sorted by file then code.
func (v *Validator) Validate(pkg *PluginPackage) []Warning {
	var warnings []Warning

	m := pkg.Manifest
	if m.Version != "" && !isValidSemver(m.Version) {
		v.logger.Debugf("Plugin %s has non-semver version %q", m.Name, m.Version)
	}

	for _, perm := range m.Permissions {
		ns, _, _ := strings.Cut(perm, ".")
		if !v.allowedPermissions[ns] {
			warnings = append(warnings, Warning{
				Code:    WarnUnknownPermission,
				Message: fmt.Sprintf("unknown permission %q", perm),
			})
		}
	}

	seen := make(map[string]bool)
	for _, c := range m.Commands {
		if seen[c.Name] {
			warnings = append(warnings, Warning{
				Code:    WarnDuplicateCommand,
				Message: fmt.Sprintf("command %q is declared more than once", c.Name),
			})
		}
		seen[c.Name] = true
	}

	for file, src := range pkg.Code {
		warnings = append(warnings, v.scanSource(file, src)...)
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].File != warnings[j].File {
			return warnings[i].File < warnings[j].File
		}
		return warnings[i].Code < warnings[j].Code
	})
	return warnings
}

func (v *Validator) scanSource(file, src string) []Warning {
	var warnings []Warning

	for _, mod := range v.dangerousModules {
		if strings.Contains(src, fmt.Sprintf("require(%q)", mod)) ||
			strings.Contains(src, fmt.Sprintf("require('%s')", mod)) ||
			strings.Contains(src, fmt.Sprintf("from %q", mod)) ||
			strings.Contains(src, fmt.Sprintf("from '%s'", mod)) {
			warnings = append(warnings, Warning{
				Code:    WarnSuspiciousCode,
				Message: fmt.Sprintf("imports unavailable module %q", mod),
				File:    file,
			})
		}
	}

	for _, p := range suspiciousPatterns {
		if p.pattern.MatchString(src) {
			warnings = append(warnings, Warning{Code: WarnSuspiciousCode, Message: p.description, File: file})
		}
	}

	for _, secret := range secretPatterns {
		if secret.pattern.MatchString(src) {
			warnings = append(warnings, Warning{
				Code:    WarnSuspiciousCode,
				Message: fmt.Sprintf("potential hardcoded %s", secret.name),
				File:    file,
			})
		}
	}
	return warnings
}
