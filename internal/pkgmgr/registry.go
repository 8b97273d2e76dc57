package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/cache"
	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// DefaultCheckTimeout bounds each availability check.
const DefaultCheckTimeout = time.Second

// ErrUnknownManager is returned when a manager name is not in the registry.
var ErrUnknownManager = errors.New("unknown package manager")

// ErrUnsupported is returned when a manager has no template for an operation.
var ErrUnsupported = errors.New("operation not supported by package manager")

// Registry is the table of known managers plus a cache of which of them are
// reachable on this machine. Availability is remembered until ClearCache.
type Registry struct {
	runner   command.Runner
	managers []*Manager
	byName   map[string]*Manager
	avail    *cache.TTL[string, bool]
	home     string
	sudo     bool
	logger   *slog.Logger

	// CheckTimeout bounds each availability check.
	CheckTimeout time.Duration
}

// NewRegistry creates a registry over managers. If managers is empty the
// built-in table is used.
func NewRegistry(runner command.Runner, managers ...*Manager) *Registry {
	if len(managers) == 0 {
		managers = DefaultManagers()
	}

	home, _ := os.UserHomeDir()

	r := &Registry{
		runner:       runner,
		managers:     managers,
		byName:       make(map[string]*Manager, len(managers)),
		avail:        cache.NewTTL[string, bool](0),
		home:         home,
		sudo:         os.Geteuid() != 0,
		logger:       slog.Default(),
		CheckTimeout: DefaultCheckTimeout,
	}
	for _, m := range managers {
		r.byName[m.Name] = m
	}
	return r
}

// SetLogger sets the logger used for availability-check diagnostics.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetHome overrides the home directory used for {home} and tier checks.
func (r *Registry) SetHome(home string) {
	r.home = home
}

// Home returns the home directory the registry resolves paths against.
func (r *Registry) Home() string {
	return r.home
}

// SetSudo controls whether privileged commands are prefixed with sudo.
func (r *Registry) SetSudo(sudo bool) {
	r.sudo = sudo
}

// Runner returns the command runner shared by the registry.
func (r *Registry) Runner() command.Runner {
	return r.runner
}

// Get returns the manager called name.
func (r *Registry) Get(name string) (*Manager, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Managers returns every registered manager in table order.
func (r *Registry) Managers() []*Manager {
	out := make([]*Manager, len(r.managers))
	copy(out, r.managers)
	return out
}

// ForLanguage returns the managers able to install tools for language.
func (r *Registry) ForLanguage(language string) []*Manager {
	var out []*Manager
	for _, m := range r.managers {
		if m.Supports(language) {
			out = append(out, m)
		}
	}
	return out
}

// IsAvailable reports whether the named manager responds to its check
// command. The answer is cached for the life of the registry.
func (r *Registry) IsAvailable(ctx context.Context, name string) bool {
	m, ok := r.byName[name]
	if !ok {
		return false
	}
	return r.check(ctx, "manager:"+name, m.CheckCommand)
}

// check runs argv with the check timeout and caches success under key.
func (r *Registry) check(ctx context.Context, key string, argv []string) bool {
	if v, ok := r.avail.Get(key); ok {
		return v
	}
	if len(argv) == 0 {
		r.avail.Set(key, false)
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, r.CheckTimeout)
	defer cancel()

	res, err := r.runner.Run(pctx, argv[0], argv[1:]...)
	ok := err == nil && res.Success()
	if err != nil {
		r.logger.Debug("availability check failed", "check", key, "error", err)
	}

	// Do not remember answers caused by the caller cancelling.
	if ctx.Err() == nil {
		r.avail.Set(key, ok)
	}
	return ok
}

// ClearCache forgets every availability answer.
func (r *Registry) ClearCache() {
	r.avail.Clear()
}

// Command renders the argv for kind using manager name. target is a
// concrete version or "latest"/"" for the newest release.
func (r *Registry) Command(name string, kind CommandKind, pkg, target string) ([]string, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownManager, name)
	}

	pinned := target != "" && target != version.Latest

	var tmpl []string
	switch kind {
	case KindInstall:
		tmpl = m.Install
		if pinned && m.InstallPinned != nil {
			tmpl = m.InstallPinned
		}
		if tmpl == nil {
			tmpl = m.InstallPinned
		}
	case KindUpgrade:
		tmpl = m.Upgrade
		if pinned && m.UpgradePinned != nil {
			tmpl = m.UpgradePinned
		}
		if tmpl == nil {
			tmpl = m.UpgradePinned
		}
	case KindUninstall:
		tmpl = m.UninstallCommand
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, name, kind)
	}
	if strings.Contains(strings.Join(tmpl, " "), "{version}") && !pinned {
		return nil, fmt.Errorf("%s %s requires a concrete version", name, kind)
	}

	argv := make([]string, 0, len(tmpl)+1)
	if m.Privileged && r.sudo {
		argv = append(argv, "sudo")
	}
	replacer := strings.NewReplacer(
		"{package}", pkg,
		"{version}", strings.TrimPrefix(target, "v"),
		"{home}", r.home,
	)
	for _, part := range tmpl {
		argv = append(argv, replacer.Replace(part))
	}
	return argv, nil
}

// NeedsSudo reports whether commands for the named manager are run with sudo.
func (r *Registry) NeedsSudo(name string) bool {
	m, ok := r.byName[name]
	return ok && m.Privileged && r.sudo
}
