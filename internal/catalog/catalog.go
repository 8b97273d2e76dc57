// Package catalog holds the metadata toolkeeper knows about each tool: how
// it is usually installed, which binaries it provides, what it depends on
// and where upstream releases are published.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

//go:embed default.yaml
var defaultCatalog []byte

// Entry describes one tool.
type Entry struct {
	Name          string
	InstallMethod string
	Package       string
	Language      string
	Candidates    []string
	PinnedVersion string
	Category      string
	Dependencies  []string
	Source        Source
}

// Binaries returns the executable names to look for, defaulting to the
// tool name.
func (e Entry) Binaries() []string {
	if len(e.Candidates) > 0 {
		return e.Candidates
	}
	return []string{e.Name}
}

// Spec converts the entry into a resolver spec. target overrides the
// pinned version when non-empty.
func (e Entry) Spec(target string) resolver.ToolSpec {
	if target == "" {
		target = e.PinnedVersion
	}
	if target == "" {
		target = version.Latest
	}
	deps := make([]string, len(e.Dependencies))
	copy(deps, e.Dependencies)
	return resolver.ToolSpec{
		ToolName:      e.Name,
		PackageName:   e.Package,
		TargetVersion: target,
		Language:      e.Language,
		Dependencies:  deps,
	}
}

type rawEntry struct {
	InstallMethod string    `yaml:"install_method"`
	Package       string    `yaml:"package"`
	Language      string    `yaml:"language"`
	Candidates    []string  `yaml:"candidates"`
	PinnedVersion string    `yaml:"pinned_version"`
	Category      string    `yaml:"category"`
	Dependencies  []string  `yaml:"dependencies"`
	Source        rawSource `yaml:"source"`
}

// Catalog is an immutable set of entries.
type Catalog struct {
	entries map[string]Entry
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, "default catalog")
	if err != nil {
		// The embedded file is covered by tests.
		return &Catalog{entries: map[string]Entry{}}
	}
	return c
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes catalog YAML: a mapping from tool name to entry.
func Parse(data []byte, name string) (*Catalog, error) {
	var raw map[string]rawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", name, err)
	}

	c := &Catalog{entries: make(map[string]Entry, len(raw))}
	var errs []string
	for _, tool := range sortedKeys(raw) {
		r := raw[tool]
		pkg := r.Package
		if pkg == "" {
			pkg = tool
		}
		src, err := r.Source.decode(pkg)
		if err != nil {
			errs = append(errs, fmt.Sprintf("tool '%s': %v", tool, err))
			continue
		}
		c.entries[tool] = Entry{
			Name:          tool,
			InstallMethod: r.InstallMethod,
			Package:       pkg,
			Language:      r.Language,
			Candidates:    r.Candidates,
			PinnedVersion: r.PinnedVersion,
			Category:      r.Category,
			Dependencies:  r.Dependencies,
			Source:        src,
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog %s:\n  - %s", name, strings.Join(errs, "\n  - "))
	}
	return c, nil
}

// Merge returns a catalog with the entries of c overridden by other.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := &Catalog{entries: make(map[string]Entry, len(c.entries)+len(other.entries))}
	for k, v := range c.entries {
		out.entries[k] = v
	}
	for k, v := range other.entries {
		out.entries[k] = v
	}
	return out
}

// Get returns the entry for tool.
func (c *Catalog) Get(tool string) (Entry, bool) {
	e, ok := c.entries[tool]
	return e, ok
}

// Names returns every tool name, sorted.
func (c *Catalog) Names() []string {
	return sortedKeys(c.entries)
}

// Lookup adapts the catalog for resolver.Expand.
func (c *Catalog) Lookup(tool string) (resolver.ToolSpec, bool) {
	e, ok := c.entries[tool]
	if !ok {
		return resolver.ToolSpec{}, false
	}
	return e.Spec(""), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
