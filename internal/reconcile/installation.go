package reconcile

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/blackwell-systems/toolkeeper/internal/oracle"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// Installation is one copy of a tool found on PATH.
type Installation struct {
	Tool    string `json:"tool"`
	Version string `json:"version"`
	Method  string `json:"method"`
	// Path is symlink-resolved.
	Path   string `json:"path"`
	Active bool   `json:"active"`
	// Valid is false when the binary did not report a version.
	Valid     bool `json:"valid"`
	PathIndex int  `json:"path_index"`
}

// Detect walks PATH in order and returns every distinct installation of
// tool under any of its candidate binary names. The first hit is the
// active one. Results are cached per tool until the TTL expires or the
// cache is cleared.
func (r *Reconciler) Detect(ctx context.Context, tool string, candidates []string) []Installation {
	if cached, ok := r.detections.Get(tool); ok {
		return cached
	}
	if len(candidates) == 0 {
		candidates = r.binaries(tool)
	}

	var found []Installation
	seen := make(map[string]bool)
	for i, dir := range filepath.SplitList(r.path) {
		if dir == "" {
			continue
		}
		for _, name := range candidates {
			hits := oracle.LookPath(dir, name)
			if len(hits) == 0 {
				continue
			}
			resolved := hits[0]
			if p, err := filepath.EvalSymlinks(resolved); err == nil {
				resolved = p
			}
			if seen[resolved] {
				continue
			}
			seen[resolved] = true

			v, err := r.detector.Version(ctx, resolved)
			if err != nil {
				r.logger.Debug("no version for installation", "tool", tool, "path", resolved, "error", err)
			}
			found = append(found, Installation{
				Tool:      tool,
				Version:   v,
				Method:    r.registry.Classify(ctx, resolved, tool),
				Path:      resolved,
				Active:    len(found) == 0,
				Valid:     err == nil && v != "",
				PathIndex: i,
			})
		}
	}

	if ctx.Err() == nil {
		r.detections.Set(tool, found)
	}
	return found
}

// SortByPreference returns installs ordered best first: lower preference
// tier, then higher version, then earlier PATH position. home is used to
// recognise user-scoped locations.
func SortByPreference(installs []Installation, home string) []Installation {
	out := make([]Installation, len(installs))
	copy(out, installs)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ta, tb := pkgmgr.Tier(a.Method, a.Path, home), pkgmgr.Tier(b.Method, b.Path, home)
		if ta != tb {
			return ta < tb
		}
		if c := version.Compare(a.Version, b.Version); c != 0 {
			return c > 0
		}
		return a.PathIndex < b.PathIndex
	})
	return out
}
