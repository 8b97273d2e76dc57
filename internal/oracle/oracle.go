// Package oracle answers "which version of this tool is installed, and
// where" by running the binaries themselves.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/cache"
	"github.com/blackwell-systems/toolkeeper/internal/catalog"
	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// ErrNotInstalled is returned when none of a tool's binaries is on PATH.
var ErrNotInstalled = errors.New("tool not installed")

// Detection is what the oracle knows about an installed tool.
type Detection struct {
	Version string `json:"version"`
	Path    string `json:"path"`
	Method  string `json:"method"`
}

// Detector inspects locally installed tools.
type Detector interface {
	// Installed finds the first of candidates on PATH.
	Installed(ctx context.Context, tool string, candidates []string) (Detection, error)
	// Version runs the binary at path and extracts its version.
	Version(ctx context.Context, path string) (string, error)
}

// Release is the newest upstream release of a tool.
type Release struct {
	Tag     string `json:"tag"`
	Version string `json:"version"`
}

// Upstream looks up the newest published release for a catalog entry.
// toolkeeper does not ship an implementation; callers that need one plug
// it in.
type Upstream interface {
	Latest(ctx context.Context, entry catalog.Entry) (Release, error)
}

// versionFlags are tried in order until one prints a version.
var versionFlags = [][]string{{"--version"}, {"version"}, {"-V"}}

// Local is a Detector backed by the command runner. Versions are cached by
// path, size and modification time, so replacing a binary invalidates its
// entry.
type Local struct {
	runner   command.Runner
	registry *pkgmgr.Registry
	versions *cache.TTL[string, string]
	path     string

	// Timeout bounds each version lookup.
	Timeout time.Duration
}

// NewLocal creates a Local detector. registry may be nil, in which case
// the method is classified from the path alone.
func NewLocal(runner command.Runner, registry *pkgmgr.Registry) *Local {
	return &Local{
		runner:   runner,
		registry: registry,
		versions: cache.NewTTL[string, string](0),
		path:     os.Getenv("PATH"),
		Timeout:  5 * time.Second,
	}
}

// SetPath overrides the PATH searched by Installed.
func (l *Local) SetPath(path string) {
	l.path = path
}

// ClearCache forgets cached versions.
func (l *Local) ClearCache() {
	l.versions.Clear()
}

// Installed implements Detector.
func (l *Local) Installed(ctx context.Context, tool string, candidates []string) (Detection, error) {
	if len(candidates) == 0 {
		candidates = []string{tool}
	}

	for _, dir := range filepath.SplitList(l.path) {
		if dir == "" {
			continue
		}
		for _, name := range candidates {
			p := filepath.Join(dir, name)
			if !isExecutable(p) {
				continue
			}
			resolved := p
			if r, err := filepath.EvalSymlinks(p); err == nil {
				resolved = r
			}

			v, err := l.Version(ctx, resolved)
			if err != nil {
				v = ""
			}
			return Detection{Version: v, Path: resolved, Method: l.classify(ctx, resolved, tool)}, nil
		}
	}
	return Detection{}, fmt.Errorf("%w: %s", ErrNotInstalled, tool)
}

func (l *Local) classify(ctx context.Context, path, tool string) string {
	if l.registry != nil {
		return l.registry.Classify(ctx, path, tool)
	}
	return pkgmgr.ClassifyByPath(path)
}

// Version implements Detector.
func (l *Local) Version(ctx context.Context, path string) (string, error) {
	key := cacheKey(path)
	if v, ok := l.versions.Get(key); ok {
		return v, nil
	}

	for _, args := range versionFlags {
		vctx, cancel := context.WithTimeout(ctx, l.Timeout)
		res, err := l.runner.Run(vctx, path, args...)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if !res.Success() {
			continue
		}
		if v := version.Extract(res.Stdout + "\n" + res.Stderr); v != "" {
			l.versions.Set(key, v)
			return v, nil
		}
	}
	return "", fmt.Errorf("could not determine version of %s", path)
}

func cacheKey(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}

// isExecutable reports whether p is a regular file with an execute bit.
func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

// LookPath returns every executable named name in the PATH string, in PATH
// order, without resolving symlinks.
func LookPath(path, name string) []string {
	var out []string
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			out = append(out, p)
		}
	}
	return out
}
