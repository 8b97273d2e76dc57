// Package engine installs and upgrades batches of tools level by level,
// running the tools of a level concurrently.
//
// Failures never escape as Go errors: every unit produces a result value
// with Success=false and an ErrorMessage, and the batch reports counts.
//
// FailFast stops scheduling once a failure has been observed: units and
// levels not yet started are marked skipped. Units already running in the
// same level are not interrupted and finish normally.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/toolkeeper/internal/backup"
	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/catalog"
	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/oracle"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/retry"
	"github.com/blackwell-systems/toolkeeper/internal/selection"
)

// Operations.
const (
	OpInstall = "install"
	OpUpgrade = "upgrade"
)

// DefaultMaxWorkers caps concurrency within a level.
const DefaultMaxWorkers = 16

// DefaultTimeout bounds a single package-manager command.
const DefaultTimeout = 10 * time.Minute

// Selector picks the manager for a tool.
type Selector interface {
	Select(ctx context.Context, tool, language string) (selection.Choice, error)
}

// Options control a bulk run.
type Options struct {
	// FailFast stops scheduling new units after the first failure.
	FailFast bool
	// Atomic undoes every success of the run if any unit fails. It implies
	// FailFast. An upgrade blocked by the breaking-change policy counts as
	// a failure, so nothing is upgraded when any candidate is blocked.
	Atomic bool
	// DryRun plans the run without executing anything.
	DryRun bool
}

// Engine runs installs and upgrades.
type Engine struct {
	registry  *pkgmgr.Registry
	runner    command.Runner
	selector  Selector
	detector  oracle.Detector
	upstream  oracle.Upstream
	retry     *retry.Policy
	backups   *backup.Manager
	breaking  *breaking.Policy
	binaries  func(tool string) []string
	entries   *catalog.Catalog
	observers []progress.Observer
	logger    *slog.Logger
	now       func() time.Time

	MaxWorkers int
	Timeout    time.Duration
	// ScriptDir receives generated rollback scripts.
	ScriptDir string
}

// New creates an Engine. Commands run through the registry's runner.
func New(registry *pkgmgr.Registry, selector Selector, detector oracle.Detector) *Engine {
	return &Engine{
		registry:   registry,
		runner:     registry.Runner(),
		selector:   selector,
		detector:   detector,
		retry:      retry.New(),
		backups:    backup.New(""),
		breaking:   breaking.New(breaking.Warn, nil),
		binaries:   func(tool string) []string { return []string{tool} },
		logger:     slog.Default(),
		now:        time.Now,
		MaxWorkers: DefaultMaxWorkers,
		Timeout:    DefaultTimeout,
		ScriptDir:  os.TempDir(),
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetRetryPolicy replaces the retry policy.
func (e *Engine) SetRetryPolicy(p *retry.Policy) {
	e.retry = p
}

// SetBackupManager replaces the backup manager.
func (e *Engine) SetBackupManager(m *backup.Manager) {
	e.backups = m
}

// SetBreakingPolicy replaces the breaking-change policy.
func (e *Engine) SetBreakingPolicy(p *breaking.Policy) {
	e.breaking = p
}

// SetUpstream sets the source of latest upstream versions. Without one,
// "latest" targets are never treated as breaking.
func (e *Engine) SetUpstream(u oracle.Upstream) {
	e.upstream = u
}

// SetBinaries sets the function mapping a tool to its executable names.
func (e *Engine) SetBinaries(fn func(tool string) []string) {
	if fn != nil {
		e.binaries = fn
	}
}

// SetCatalog uses c for binary names and upstream lookups.
func (e *Engine) SetCatalog(c *catalog.Catalog) {
	e.entries = c
	e.binaries = func(tool string) []string {
		if en, ok := c.Get(tool); ok {
			return en.Binaries()
		}
		return []string{tool}
	}
}

// Observe registers a progress observer for subsequent runs. Observers run
// under the tracker lock and must not block.
func (e *Engine) Observe(o progress.Observer) {
	e.observers = append(e.observers, o)
}

// Install installs a single tool.
func (e *Engine) Install(ctx context.Context, spec resolver.ToolSpec) *InstallResult {
	tracker := e.tracker(spec.ToolName)
	tracker.Update(spec.ToolName, progress.InProgress, "installing")
	r := e.installUnit(ctx, spec, Options{})
	tracker.Update(spec.ToolName, r.Status, r.ErrorMessage)
	return r
}

// Upgrade upgrades a single tool. A breaking upgrade is checked against
// the policy before anything is changed.
func (e *Engine) Upgrade(ctx context.Context, spec resolver.ToolSpec) *UpgradeResult {
	tracker := e.tracker(spec.ToolName)
	tracker.Update(spec.ToolName, progress.InProgress, "upgrading")
	r := e.upgradeUnit(ctx, spec, nil, Options{}, true, nil)
	tracker.Update(spec.ToolName, r.Status, r.ErrorMessage)
	return r
}

// BulkInstall installs specs in dependency order.
func (e *Engine) BulkInstall(ctx context.Context, specs []resolver.ToolSpec, opts Options) *BulkResult {
	return e.run(ctx, OpInstall, specs, opts, e.now(), nil, nil, func(ctx context.Context, spec resolver.ToolSpec) Result {
		return e.installUnit(ctx, spec, opts)
	})
}

// BulkUpgrade upgrades specs in dependency order. The breaking-change
// policy is applied to the whole set first; under "warn" a single
// confirmation covers every breaking upgrade.
func (e *Engine) BulkUpgrade(ctx context.Context, specs []resolver.ToolSpec, opts Options) *BulkResult {
	start := e.now()

	current := make(map[string]*installed, len(specs))
	var candidates []breaking.Candidate
	for _, s := range specs {
		cur := e.detect(ctx, s)
		current[s.ToolName] = cur
		if cur.err == nil {
			candidates = append(candidates, breaking.Candidate{Tool: s.ToolName, From: cur.det.Version, To: cur.want})
		}
	}

	blockedBy := make(map[string]breaking.Blocked)
	if !opts.DryRun {
		_, blocked := e.breaking.Partition(ctx, candidates)
		for _, b := range blocked {
			blockedBy[b.Tool] = b
		}
	}

	var pre []Result
	var runnable []resolver.ToolSpec
	for _, s := range specs {
		b, ok := blockedBy[s.ToolName]
		if !ok {
			runnable = append(runnable, s)
			continue
		}
		cur := current[s.ToolName]
		now := e.now()
		pre = append(pre, newUpgradeResult(upgradeRecord{
			tool:     s.ToolName,
			pkg:      s.Package(),
			from:     cur.det.Version,
			target:   s.Target(),
			path:     cur.det.Path,
			breaking: true,
			err:      fmt.Errorf("%w: %s %s", b.Err, s.ToolName, b.Reason),
			start:    now,
			end:      now,
		}))
	}

	var retained *backupSet
	if opts.Atomic {
		retained = &backupSet{byTool: make(map[string]*backup.UpgradeBackup)}
	}

	return e.run(ctx, OpUpgrade, runnable, opts, start, pre, retained, func(ctx context.Context, spec resolver.ToolSpec) Result {
		return e.upgradeUnit(ctx, spec, current[spec.ToolName], opts, false, retained)
	})
}

func (e *Engine) tracker(tools ...string) *progress.Tracker {
	t := progress.NewTracker(tools...)
	for _, o := range e.observers {
		t.Subscribe(o)
	}
	return t
}

func (e *Engine) workers(levelSize int) int {
	n := e.MaxWorkers
	if n <= 0 {
		n = DefaultMaxWorkers
	}
	if levelSize < n {
		n = levelSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// run executes levels in order with bounded concurrency inside each level.
func (e *Engine) run(ctx context.Context, op string, specs []resolver.ToolSpec, opts Options, start time.Time, pre []Result, retained *backupSet, unit func(context.Context, resolver.ToolSpec) Result) *BulkResult {
	levels := resolver.Resolve(specs)

	names := make([]string, 0, len(specs)+len(pre))
	for _, r := range pre {
		names = append(names, r.Unit().Tool)
	}
	levelNames := make([][]string, len(levels))
	for i, l := range levels {
		levelNames[i] = l.Names()
		names = append(names, levelNames[i]...)
	}

	tracker := e.tracker(names...)
	for _, r := range pre {
		u := r.Unit()
		tracker.Update(u.Tool, u.Status, u.ErrorMessage)
	}

	stopOnFailure := opts.FailFast || opts.Atomic
	var failed atomic.Bool
	if opts.Atomic {
		for _, r := range pre {
			if !r.Unit().Success {
				failed.Store(true)
			}
		}
	}

	results := append([]Result(nil), pre...)
	for i, level := range levels {
		e.logger.Debug("starting level", "operation", op, "level", i, "tools", levelNames[i])

		levelResults := make([]Result, len(level))
		var mu sync.Mutex
		record := func(idx int, r Result) {
			mu.Lock()
			levelResults[idx] = r
			mu.Unlock()
			u := r.Unit()
			tracker.Update(u.Tool, u.Status, u.ErrorMessage)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers(len(level)))

		for idx, spec := range level {
			idx, spec := idx, spec

			if err := e.startable(ctx, stopOnFailure, &failed); err != nil {
				record(idx, e.notStarted(op, spec, err))
				continue
			}

			g.Go(func() error {
				if err := e.startable(gctx, stopOnFailure, &failed); err != nil {
					record(idx, e.notStarted(op, spec, err))
					return nil
				}
				tracker.Update(spec.ToolName, progress.InProgress, "")
				r := unit(gctx, spec)
				if !r.Unit().Success {
					failed.Store(true)
				}
				record(idx, r)
				return nil
			})
		}
		_ = g.Wait()

		results = append(results, levelResults...)
	}

	rec := bulkRecord{
		operation: op,
		levels:    levelNames,
		results:   results,
		dryRun:    opts.DryRun,
		start:     start,
	}

	if !opts.DryRun {
		entries := rollbackEntries(results)
		if len(entries) > 0 {
			path, err := e.writeRollbackScript(op, entries)
			if err != nil {
				e.logger.Warn("could not write rollback script", "error", err)
			}
			rec.script = path

			if opts.Atomic && failed.Load() {
				rec.rollbackAttempted = true
				rec.rollbackSucceeded = e.rollback(ctx, op, retained, path)
			}
		}
		e.release(retained)
	}

	rec.end = e.now()
	return newBulkResult(rec)
}

// startable returns an error when a unit must not start.
func (e *Engine) startable(ctx context.Context, stopOnFailure bool, failed *atomic.Bool) error {
	if stopOnFailure && failed.Load() {
		return errSkipped
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errCancelled, err)
	}
	return nil
}

func (e *Engine) notStarted(op string, spec resolver.ToolSpec, err error) Result {
	now := e.now()
	if op == OpUpgrade {
		return newUpgradeResult(upgradeRecord{tool: spec.ToolName, pkg: spec.Package(), target: spec.Target(), err: err, start: now, end: now})
	}
	return newInstallResult(installRecord{tool: spec.ToolName, pkg: spec.Package(), target: spec.Target(), err: err, start: now, end: now})
}

// rollbackEntries collects the successful, non-trivial units of a run.
func rollbackEntries(results []Result) []rollbackEntry {
	var entries []rollbackEntry
	for _, r := range results {
		switch r := r.(type) {
		case *InstallResult:
			if r.Success {
				entries = append(entries, rollbackEntry{Tool: r.ToolName, Package: r.PackageName, Version: r.InstalledVersion, Manager: r.PackageManager})
			}
		case *UpgradeResult:
			if r.Success && r.PackageManager != "" {
				entries = append(entries, rollbackEntry{Tool: r.ToolName, Package: r.PackageName, Version: r.NewVersion, Previous: r.PreviousVersion, Manager: r.PackageManager})
			}
		}
	}
	return entries
}

// backupSet holds the backups of successful upgrades in an atomic run
// until the run ends.
type backupSet struct {
	mu     sync.Mutex
	byTool map[string]*backup.UpgradeBackup
}

func (b *backupSet) keep(tool string, bk *backup.UpgradeBackup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byTool[tool] = bk
}

func (b *backupSet) all() []*backup.UpgradeBackup {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*backup.UpgradeBackup, 0, len(b.byTool))
	for _, bk := range b.byTool {
		out = append(out, bk)
	}
	return out
}

// rollback undoes the successes of a failed atomic run. Retained upgrade
// backups of non-privileged managers are restored first; the script then
// runs for every success.
func (e *Engine) rollback(ctx context.Context, op string, retained *backupSet, script string) bool {
	ok := true
	for _, bk := range retained.all() {
		if e.privileged(bk.PackageManager) {
			continue
		}
		if !e.backups.Restore(bk) {
			ok = false
		}
	}
	if script == "" {
		return false
	}
	e.logger.Warn("atomic run failed, executing rollback script", "operation", op, "script", script)
	return e.runRollbackScript(ctx, script) && ok
}

// release deletes the backups retained for an atomic run.
func (e *Engine) release(retained *backupSet) {
	for _, bk := range retained.all() {
		if err := e.backups.Delete(bk); err != nil {
			e.logger.Warn("could not delete backup", "tool", bk.ToolName, "error", err)
		}
	}
}

func (e *Engine) privileged(manager string) bool {
	m, ok := e.registry.Get(manager)
	return ok && m.Privileged
}
