package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/backup"
	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/catalog"
	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/config"
	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/environment"
	"github.com/blackwell-systems/toolkeeper/internal/oracle"
	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/selection"
	"github.com/blackwell-systems/toolkeeper/internal/store"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// newRunner creates the runner every command goes through. Tests replace
// it with a command.FakeRunner.
var newRunner = func() command.Runner { return command.NewExecRunner() }

// session holds everything a command needs, loaded once per invocation.
type session struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	aliases  *config.AliasConfig
	registry *pkgmgr.Registry
	detector *oracle.Local
	env      environment.Mode
	logger   *slog.Logger
}

func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	aliases := &config.AliasConfig{}
	if dir, err := config.Dir(); err == nil {
		if aliases, err = config.LoadAliases(dir); err != nil {
			return nil, fmt.Errorf("failed to load aliases: %w", err)
		}
	}

	logger := slog.Default()
	runner := newRunner()
	registry := pkgmgr.NewRegistry(runner)
	registry.SetLogger(logger)

	env := environment.Detect(ctx)
	logger.Debug("environment detected", "mode", env)

	return &session{
		cfg:      cfg,
		catalog:  cat,
		aliases:  aliases,
		registry: registry,
		detector: oracle.NewLocal(runner, registry),
		env:      env,
		logger:   logger,
	}, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path, err := config.DefaultPath()
	if err != nil {
		return config.Default(), nil
	}
	return config.LoadOrDefault(path)
}

func loadCatalog() (*catalog.Catalog, error) {
	c := catalog.Default()
	if catalogPath == "" {
		return c, nil
	}
	extra, err := catalog.Load(catalogPath)
	if err != nil {
		return nil, err
	}
	return c.Merge(extra), nil
}

// newEngine builds an engine from the session's config. breakingMode
// overrides the configured breaking-change policy when non-empty.
func (s *session) newEngine(confirmer breaking.Confirmer, breakingMode string) (*engine.Engine, error) {
	if breakingMode == "" {
		breakingMode = s.cfg.Preferences.BreakingChanges
	}
	mode, err := breaking.ParseMode(breakingMode)
	if err != nil {
		return nil, err
	}

	e := engine.New(s.registry, selection.New(s.registry, s.cfg, s.env), s.detector)
	e.SetLogger(s.logger)
	e.SetCatalog(s.catalog)
	e.SetBreakingPolicy(breaking.New(mode, confirmer))

	backups := backup.New("")
	backups.SetLogger(s.logger)
	e.SetBackupManager(backups)

	e.MaxWorkers = s.cfg.Preferences.MaxWorkers
	e.Timeout = s.cfg.Timeout()

	if dir, err := stateDir(); err == nil {
		scripts := filepath.Join(dir, "rollback")
		if err := os.MkdirAll(scripts, 0755); err == nil {
			e.ScriptDir = scripts
		}
	}
	return e, nil
}

func (s *session) newReconciler(confirmer breaking.Confirmer) *reconcile.Reconciler {
	r := reconcile.New(s.registry, s.detector, s.cfg.CacheTTL())
	r.SetLogger(s.logger)
	r.SetCatalog(s.catalog)
	r.SetConfirmer(confirmer)
	r.Timeout = s.cfg.Timeout()
	return r
}

// binaries returns the executable names of tool.
func (s *session) binaries(tool string) []string {
	if en, ok := s.catalog.Get(tool); ok {
		return en.Binaries()
	}
	return []string{tool}
}

// isInstalled reports whether any binary of tool is on PATH.
func (s *session) isInstalled(ctx context.Context, tool string) bool {
	_, err := s.detector.Installed(ctx, tool, s.binaries(tool))
	return err == nil
}

// parseToolArg splits "tool@version". A missing version means the target
// is left to the catalog and config.
func parseToolArg(arg string) (name, target string) {
	name, target, _ = strings.Cut(strings.TrimSpace(arg), "@")
	return name, target
}

// request is a parsed list of tool arguments.
type request struct {
	names   []string
	targets map[string]string
}

func (s *session) parseArgs(args []string) (request, error) {
	if len(args) == 0 {
		return request{}, errors.New("no tools given")
	}
	req := request{targets: make(map[string]string)}
	seen := make(map[string]bool)
	for _, arg := range args {
		name, target := parseToolArg(arg)
		if name == "" {
			return request{}, fmt.Errorf("invalid tool argument %q", arg)
		}
		if target != "" && target != version.Latest && !version.Valid(target) {
			return request{}, fmt.Errorf("invalid version %q for %s", target, name)
		}
		name = s.aliases.Resolve(name)
		if target != "" {
			req.targets[name] = target
		}
		if !seen[name] {
			seen[name] = true
			req.names = append(req.names, name)
		}
	}
	return req, nil
}

// spec returns the spec for a tool. Tools missing from the catalog get a
// bare spec named after the tool; the version comes from the command line,
// then the config, then the catalog.
func (s *session) spec(req request, name string) resolver.ToolSpec {
	spec, ok := s.catalog.Lookup(name)
	if !ok {
		spec = resolver.ToolSpec{ToolName: name, TargetVersion: version.Latest}
	}
	if tc, ok := s.cfg.Tool(name); ok && tc.Version != "" {
		spec.TargetVersion = tc.Version
	}
	if v := req.targets[name]; v != "" {
		spec.TargetVersion = v
	}
	return spec
}

// installSpecs expands req with its catalog prerequisites. Prerequisites
// already on PATH are dropped; the resolver treats them as satisfied.
func (s *session) installSpecs(ctx context.Context, req request) []resolver.ToolSpec {
	requested := make(map[string]bool, len(req.names))
	for _, n := range req.names {
		requested[n] = true
	}

	lookup := func(name string) (resolver.ToolSpec, bool) {
		if _, ok := s.catalog.Get(name); !ok && !requested[name] {
			return resolver.ToolSpec{}, false
		}
		return s.spec(req, name), true
	}
	expanded, _ := resolver.Expand(req.names, lookup)

	specs := make([]resolver.ToolSpec, 0, len(expanded))
	for _, spec := range expanded {
		if !requested[spec.ToolName] && s.isInstalled(ctx, spec.ToolName) {
			s.logger.Debug("prerequisite already installed", "tool", spec.ToolName)
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// confirmer approves everything with --yes and otherwise asks on the
// terminal, declining when there is none.
func confirmer(yes bool) breaking.Confirmer {
	if yes {
		return breaking.Approve{}
	}
	return breaking.NewPromptConfirmer()
}

// openStore opens the history database, creating the schema if needed.
func openStore() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return st, nil
}

// record saves a run. History is best effort: failures are logged and the
// command's own outcome is unaffected.
func record(run *store.Run) {
	if run.DryRun {
		return
	}
	st, err := openStore()
	if err != nil {
		slog.Warn("run not recorded", "error", err)
		return
	}
	defer st.Close()
	if _, err := st.InsertRun(run); err != nil {
		slog.Warn("run not recorded", "error", err)
	}
}

// runFromBulk converts a bulk result into a history record.
func runFromBulk(b *engine.BulkResult, started time.Time) *store.Run {
	run := &store.Run{
		Operation:         b.Operation,
		StartedAt:         started,
		DurationSeconds:   b.DurationSeconds,
		Success:           b.Success,
		DryRun:            b.DryRun,
		Succeeded:         b.Succeeded,
		Failed:            b.Failed,
		Skipped:           b.Skipped,
		Blocked:           b.Blocked,
		RollbackScript:    b.RollbackScript,
		RollbackAttempted: b.RollbackAttempted,
		RollbackSucceeded: b.RollbackSucceeded,
		ErrorMessage:      b.ErrorMessage,
	}
	for _, res := range b.Results {
		run.Results = append(run.Results, runResult(res))
	}
	return run
}

// runFromSingle converts one install or upgrade into a history record.
func runFromSingle(op string, res engine.Result, dryRun bool, started time.Time) *store.Run {
	u := res.Unit()
	run := &store.Run{
		Operation:       op,
		StartedAt:       started,
		DurationSeconds: u.DurationSeconds,
		Success:         u.Success,
		DryRun:          dryRun,
		ErrorMessage:    u.ErrorMessage,
		Results:         []store.RunResult{runResult(res)},
	}
	switch {
	case u.Success:
		run.Succeeded = 1
	case isBlocked(res):
		run.Blocked = 1
	case u.Status == progress.Skipped:
		run.Skipped = 1
	default:
		run.Failed = 1
	}
	return run
}

func runResult(res engine.Result) store.RunResult {
	u := res.Unit()
	r := store.RunResult{
		Tool:            u.Tool,
		Manager:         u.Manager,
		Status:          string(u.Status),
		Success:         u.Success,
		DurationSeconds: u.DurationSeconds,
		ErrorMessage:    u.ErrorMessage,
	}
	switch v := res.(type) {
	case *engine.InstallResult:
		r.NewVersion = v.InstalledVersion
	case *engine.UpgradeResult:
		r.PreviousVersion = v.PreviousVersion
		r.NewVersion = v.NewVersion
		if isBlocked(res) {
			r.Status = "blocked"
		}
	}
	return r
}

func isBlocked(res engine.Result) bool {
	u, ok := res.(*engine.UpgradeResult)
	return ok && u.Blocked
}

// newProgress follows a bulk run on stderr. It returns nil in JSON mode.
func newProgress(e *engine.Engine, total int, description string) *output.ProgressBar {
	if jsonOutput {
		return nil
	}
	bar := output.NewProgress(total, description)
	bar.SetWriter(os.Stderr)
	e.Observe(bar.Observe)
	return bar
}

// emit prints v as JSON or the rendered text.
func emit(w io.Writer, v any, text string) error {
	if jsonOutput {
		return output.WriteJSON(w, v)
	}
	_, err := io.WriteString(w, text)
	return err
}
