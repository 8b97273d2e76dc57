package pkgmgr

import (
	"context"
	"path/filepath"
	"strings"
)

// ownershipQuery asks one package manager whether it owns a binary.
type ownershipQuery struct {
	name  string   // tool whose availability gates the query
	check []string // availability check for that tool
	match func(ctx context.Context, r *Registry, path, tool string) (string, bool)
}

// ownershipQueries run in order; the first match wins.
var ownershipQueries = []ownershipQuery{
	{name: "dpkg", check: []string{"dpkg", "--version"}, match: queryDpkg},
	{name: "rpm", check: []string{"rpm", "--version"}, match: queryRPM},
	{name: "brew", check: []string{"brew", "--version"}, match: queryBrew},
	{name: "cargo", check: []string{"cargo", "--version"}, match: queryCargo},
	{name: "pipx", check: []string{"pipx", "--version"}, match: queryPipx},
	{name: "uv", check: []string{"uv", "--version"}, match: queryUV},
}

// pathHeuristic maps a path fragment to the manager that usually owns it.
type pathHeuristic struct {
	fragment string
	prefix   bool // fragment must be a path prefix rather than a substring
	method   string
}

// pathHeuristics are checked in order; user-scoped locations come first so
// that e.g. ~/.local/share/uv beats a generic ~/.local/bin match.
var pathHeuristics = []pathHeuristic{
	{fragment: "/.cargo/bin/", method: "cargo"},
	{fragment: "/.rustup/", method: "rustup"},
	{fragment: "/uv/tools/", method: "uv"},
	{fragment: "/pipx/venvs/", method: "pipx"},
	{fragment: "/.nvm/", method: "nvm"},
	{fragment: "/.pyenv/", method: "pyenv"},
	{fragment: "/.rbenv/", method: "rbenv"},
	{fragment: "/.gem/", method: "gem"},
	{fragment: "/.npm-global/", method: "npm"},
	{fragment: "/node_modules/", method: "npm"},
	{fragment: "/go/bin/", method: "go"},
	{fragment: "/.local/bin/", method: "pipx"},
	{fragment: "/opt/homebrew/", prefix: true, method: "brew"},
	{fragment: "/home/linuxbrew/", prefix: true, method: "brew"},
	{fragment: "/Cellar/", method: "brew"},
	{fragment: "/snap/", prefix: true, method: "snap"},
	{fragment: "/usr/bin/", prefix: true, method: "apt"},
	{fragment: "/usr/sbin/", prefix: true, method: "apt"},
	{fragment: "/bin/", prefix: true, method: "apt"},
	{fragment: "/sbin/", prefix: true, method: "apt"},
}

// Classify determines which manager installed the binary at path.
// Authoritative manager queries are tried first; path heuristics are used
// only when none of them claims the file. Returns Unknown otherwise.
func (r *Registry) Classify(ctx context.Context, path, tool string) string {
	for _, q := range ownershipQueries {
		if !r.check(ctx, "query:"+q.name, q.check) {
			continue
		}
		if method, ok := q.match(ctx, r, path, tool); ok {
			return method
		}
	}
	return ClassifyByPath(path)
}

// ClassifyByPath applies the path heuristics only.
func ClassifyByPath(path string) string {
	p := filepath.ToSlash(path)
	for _, h := range pathHeuristics {
		if h.prefix {
			if strings.HasPrefix(p, h.fragment) {
				return h.method
			}
			continue
		}
		if strings.Contains(p, h.fragment) {
			return h.method
		}
	}
	return Unknown
}

func (r *Registry) run(ctx context.Context, argv ...string) (string, bool) {
	res, err := r.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil || !res.Success() {
		return "", false
	}
	return res.Stdout, true
}

func queryDpkg(ctx context.Context, r *Registry, path, _ string) (string, bool) {
	out, ok := r.run(ctx, "dpkg", "-S", path)
	if !ok || strings.TrimSpace(out) == "" {
		return "", false
	}
	return "apt", true
}

func queryRPM(ctx context.Context, r *Registry, path, _ string) (string, bool) {
	out, ok := r.run(ctx, "rpm", "-qf", path)
	if !ok || strings.Contains(out, "not owned") {
		return "", false
	}
	if r.IsAvailable(ctx, "dnf") {
		return "dnf", true
	}
	if r.IsAvailable(ctx, "yum") {
		return "yum", true
	}
	return "dnf", true
}

func queryBrew(ctx context.Context, r *Registry, path, tool string) (string, bool) {
	if strings.Contains(path, "/Cellar/"+tool+"/") {
		return "brew", true
	}
	prefix, ok := r.run(ctx, "brew", "--prefix")
	prefix = strings.TrimSpace(prefix)
	if !ok || prefix == "" || !strings.HasPrefix(path, prefix+"/") {
		return "", false
	}
	out, ok := r.run(ctx, "brew", "list", "--formula", "-1")
	if !ok {
		return "", false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == tool {
			return "brew", true
		}
	}
	return "", false
}

// queryCargo parses `cargo install --list`, whose binaries are indented
// under each crate line:
//
//	ripgrep v14.1.0:
//	    rg
func queryCargo(ctx context.Context, r *Registry, path, _ string) (string, bool) {
	if !strings.Contains(filepath.ToSlash(path), "/.cargo/") {
		return "", false
	}
	out, ok := r.run(ctx, "cargo", "install", "--list")
	if !ok {
		return "", false
	}
	base := filepath.Base(path)
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, " ") && strings.TrimSpace(line) == base {
			return "cargo", true
		}
	}
	return "", false
}

func queryPipx(ctx context.Context, r *Registry, path, tool string) (string, bool) {
	p := filepath.ToSlash(path)
	if !strings.Contains(p, "/pipx/") && !strings.Contains(p, "/.local/bin/") {
		return "", false
	}
	out, ok := r.run(ctx, "pipx", "list", "--short")
	if !ok {
		return "", false
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == tool {
			return "pipx", true
		}
	}
	return "", false
}

// queryUV parses `uv tool list`:
//
//	ruff v0.4.1
//	- ruff
func queryUV(ctx context.Context, r *Registry, path, tool string) (string, bool) {
	p := filepath.ToSlash(path)
	if !strings.Contains(p, "/uv/tools/") && !strings.Contains(p, "/.local/bin/") {
		return "", false
	}
	out, ok := r.run(ctx, "uv", "tool", "list")
	if !ok {
		return "", false
	}
	base := filepath.Base(path)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			if strings.TrimSpace(strings.TrimPrefix(line, "- ")) == base {
				return "uv", true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == tool {
			return "uv", true
		}
	}
	return "", false
}
