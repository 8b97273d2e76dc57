// Package selection picks the package manager that should own a tool.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/blackwell-systems/toolkeeper/internal/config"
	"github.com/blackwell-systems/toolkeeper/internal/environment"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
)

// ErrNoPackageManager is matched by every *NoPackageManagerError.
var ErrNoPackageManager = errors.New("no package manager available")

// NoPackageManagerError reports that nothing in the registry can install a
// tool for the given language.
type NoPackageManagerError struct {
	Tool     string
	Language string
}

func (e *NoPackageManagerError) Error() string {
	if e.Language == "" {
		return fmt.Sprintf("no package manager available for %s", e.Tool)
	}
	return fmt.Sprintf("no package manager available for %s (language %s)", e.Tool, e.Language)
}

// Unwrap lets errors.Is match ErrNoPackageManager.
func (e *NoPackageManagerError) Unwrap() error {
	return ErrNoPackageManager
}

// DefaultHierarchies are the built-in manager orders per language. The
// empty language covers standalone binaries.
var DefaultHierarchies = map[string][]string{
	"python":     {"uv", "pipx", "pip"},
	"rust":       {"cargo"},
	"node":       {"npm"},
	"javascript": {"npm"},
	"typescript": {"npm"},
	"go":         {"go"},
	"ruby":       {"gem"},
	"":           {"github", "brew", "apt", "dnf", "pacman"},
}

// Reason explains which rule produced a Choice.
type Reason string

const (
	ReasonOverride  Reason = "config override"
	ReasonCustom    Reason = "custom hierarchy"
	ReasonDefault   Reason = "default hierarchy"
	ReasonFallback  Reason = "configured fallback"
	ReasonAvailable Reason = "first available"
)

// Choice is the selected manager and why it won.
type Choice struct {
	Manager string
	Reason  Reason
}

func (c Choice) String() string {
	return fmt.Sprintf("%s (%s)", c.Manager, c.Reason)
}

// Policy applies the selection rules against a registry.
type Policy struct {
	registry *pkgmgr.Registry
	config   *config.Config
	mode     environment.Mode
}

// New creates a Policy. A nil cfg behaves like an empty config.
func New(registry *pkgmgr.Registry, cfg *config.Config, mode environment.Mode) *Policy {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Policy{registry: registry, config: cfg, mode: mode}
}

// Select returns the manager for tool, trying in order: the per-tool
// method from config, the custom hierarchy for language, the built-in
// hierarchy (system managers first on servers), the per-tool fallback, and
// finally any available manager supporting language with vendor managers
// preferred.
func (p *Policy) Select(ctx context.Context, tool, language string) (Choice, error) {
	tc, hasTool := p.config.Tool(tool)

	if hasTool && tc.Method != "" && p.usable(ctx, tc.Method) {
		return Choice{Manager: tc.Method, Reason: ReasonOverride}, nil
	}

	if custom := p.config.Hierarchy(language); len(custom) > 0 {
		if name, ok := p.first(ctx, custom); ok {
			return Choice{Manager: name, Reason: ReasonCustom}, nil
		}
	}

	if name, ok := p.first(ctx, p.DefaultHierarchy(language)); ok {
		return Choice{Manager: name, Reason: ReasonDefault}, nil
	}

	if hasTool && tc.Fallback != "" && p.usable(ctx, tc.Fallback) {
		return Choice{Manager: tc.Fallback, Reason: ReasonFallback}, nil
	}

	candidates := p.registry.ForLanguage(language)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Category == pkgmgr.CategoryVendor && candidates[j].Category != pkgmgr.CategoryVendor
	})
	for _, m := range candidates {
		if p.registry.IsAvailable(ctx, m.Name) {
			return Choice{Manager: m.Name, Reason: ReasonAvailable}, nil
		}
	}

	return Choice{}, &NoPackageManagerError{Tool: tool, Language: language}
}

// DefaultHierarchy returns the built-in order for language, with system
// managers moved to the front on servers. Languages without a built-in
// order get an empty hierarchy.
func (p *Policy) DefaultHierarchy(language string) []string {
	base := DefaultHierarchies[language]
	out := make([]string, len(base))
	copy(out, base)

	if p.mode != environment.Server {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return p.isSystem(out[i]) && !p.isSystem(out[j])
	})
	return out
}

func (p *Policy) isSystem(name string) bool {
	m, ok := p.registry.Get(name)
	return ok && m.IsSystem()
}

func (p *Policy) usable(ctx context.Context, name string) bool {
	if _, ok := p.registry.Get(name); !ok {
		return false
	}
	return p.registry.IsAvailable(ctx, name)
}

func (p *Policy) first(ctx context.Context, names []string) (string, bool) {
	for _, name := range names {
		if p.usable(ctx, name) {
			return name, true
		}
	}
	return "", false
}
