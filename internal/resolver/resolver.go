// Package resolver orders tool specifications into dependency levels that
// can be installed concurrently.
package resolver

import (
	"sort"

	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// ToolSpec describes one tool to install or upgrade.
type ToolSpec struct {
	ToolName      string   `json:"tool_name"`
	PackageName   string   `json:"package_name"`
	TargetVersion string   `json:"target_version"` // "latest" or a concrete version
	Language      string   `json:"language,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
}

// Package returns the package name to hand to the manager, defaulting to
// the tool name.
func (s ToolSpec) Package() string {
	if s.PackageName != "" {
		return s.PackageName
	}
	return s.ToolName
}

// Target returns the target version, defaulting to "latest".
func (s ToolSpec) Target() string {
	if s.TargetVersion == "" {
		return version.Latest
	}
	return s.TargetVersion
}

// Level is a batch of specs with no unmet in-batch dependency.
type Level []ToolSpec

// Names returns the tool names in the level.
func (l Level) Names() []string {
	names := make([]string, len(l))
	for i, s := range l {
		names[i] = s.ToolName
	}
	return names
}

// Resolve groups specs into levels such that every dependency present in
// the batch lands in a strictly earlier level than its dependent.
// Dependencies naming tools outside the batch are treated as satisfied.
//
// Each level is a full ready frontier of Kahn's algorithm, so independent
// tools always share a level. If a cycle leaves nodes with no zero
// in-degree, all remaining specs are placed in one final level; they will
// most likely fail at execution time.
func Resolve(specs []ToolSpec) []Level {
	if len(specs) == 0 {
		return nil
	}

	byName := make(map[string]ToolSpec, len(specs))
	for _, s := range specs {
		byName[s.ToolName] = s
	}

	inDegree := make(map[string]int, len(byName))
	dependents := make(map[string][]string, len(byName))
	for name, s := range byName {
		inDegree[name] += 0
		seen := make(map[string]bool)
		for _, dep := range s.Dependencies {
			if _, ok := byName[dep]; !ok || dep == name || seen[dep] {
				if dep == name {
					// A self-dependency can never be satisfied.
					inDegree[name]++
				}
				continue
			}
			seen[dep] = true
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var levels []Level
	remaining := len(byName)

	for remaining > 0 {
		var frontier []string
		for name, d := range inDegree {
			if d == 0 {
				frontier = append(frontier, name)
			}
		}

		if len(frontier) == 0 {
			// Cycle: dump everything left into one final level.
			var rest []string
			for name := range inDegree {
				rest = append(rest, name)
			}
			levels = append(levels, buildLevel(rest, byName))
			break
		}

		for _, name := range frontier {
			delete(inDegree, name)
			for _, dependent := range dependents[name] {
				if _, pending := inDegree[dependent]; pending {
					inDegree[dependent]--
				}
			}
		}
		remaining -= len(frontier)
		levels = append(levels, buildLevel(frontier, byName))
	}

	return levels
}

func buildLevel(names []string, byName map[string]ToolSpec) Level {
	sort.Strings(names)
	level := make(Level, len(names))
	for i, n := range names {
		level[i] = byName[n]
	}
	return level
}

// Flatten returns the specs of levels in execution order.
func Flatten(levels []Level) []ToolSpec {
	var out []ToolSpec
	for _, l := range levels {
		out = append(out, l...)
	}
	return out
}
