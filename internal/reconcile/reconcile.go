// Package reconcile finds tools installed more than once through different
// package managers and either explains how to make the preferred copy win
// on PATH or removes the others.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/cache"
	"github.com/blackwell-systems/toolkeeper/internal/catalog"
	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/oracle"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/shell"
)

// DefaultCacheTTL is how long detection results are reused.
const DefaultCacheTTL = time.Hour

// DefaultTimeout bounds one uninstall command.
const DefaultTimeout = 10 * time.Minute

// Mode selects what Reconcile does about duplicates.
type Mode string

const (
	// Parallel leaves every installation in place and only reports.
	Parallel Mode = "parallel"
	// Aggressive uninstalls every installation but the preferred one.
	Aggressive Mode = "aggressive"
)

// ParseMode parses a reconciliation mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Parallel, "":
		return Parallel, nil
	case Aggressive:
		return Aggressive, nil
	}
	return "", fmt.Errorf("invalid reconciliation mode %q: must be parallel or aggressive", s)
}

// Action is what Reconcile ended up doing.
type Action string

const (
	ActionNone         Action = "none"
	ActionPathGuidance Action = "path_guidance"
	ActionRemoved      Action = "removed"
	ActionBlocked      Action = "blocked"
	ActionAborted      Action = "aborted"
	ActionError        Action = "error"
)

// ErrProtected is returned for safelisted tools in aggressive mode.
var ErrProtected = errors.New("refusing to remove installations of a protected system tool")

// Options adjust a reconciliation.
type Options struct {
	// Yes skips the confirmation before removing installations.
	Yes bool
	// Candidates overrides the binary names searched for.
	Candidates []string
}

// Result is the outcome of reconciling one tool.
type Result struct {
	Tool            string         `json:"tool"`
	Installations   []Installation `json:"installations"`
	Preferred       *Installation  `json:"preferred"`
	Active          *Installation  `json:"active"`
	PathIssues      []string       `json:"path_issues"`
	ActionTaken     Action         `json:"action_taken"`
	Guidance        string         `json:"guidance,omitempty"`
	Removed         []Installation `json:"removed,omitempty"`
	Success         bool           `json:"success"`
	DurationSeconds float64        `json:"duration_seconds"`
	ErrorMessage    string         `json:"error_message"`
}

// MarshalJSON writes error_message as null when empty.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	var msg *string
	if r.ErrorMessage != "" {
		msg = &r.ErrorMessage
	}
	return json.Marshal(struct {
		*alias
		ErrorMessage *string `json:"error_message"`
	}{(*alias)(r), msg})
}

// Reconciler detects and resolves duplicate installations.
type Reconciler struct {
	registry   *pkgmgr.Registry
	runner     command.Runner
	detector   oracle.Detector
	detections *cache.TTL[string, []Installation]
	confirmer  breaking.Confirmer
	binaries   func(tool string) []string
	packages   func(tool string) string
	shell      shell.Kind
	path       string
	logger     *slog.Logger
	now        func() time.Time

	// MaxWorkers caps concurrent detection in ReconcileAll.
	MaxWorkers int
	Timeout    time.Duration
}

// New creates a Reconciler. Versions come from detector; ownership from the
// registry's classification. ttl <= 0 selects DefaultCacheTTL.
func New(registry *pkgmgr.Registry, detector oracle.Detector, ttl time.Duration) *Reconciler {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Reconciler{
		registry:   registry,
		runner:     registry.Runner(),
		detector:   detector,
		detections: cache.NewTTL[string, []Installation](ttl),
		confirmer:  breaking.Decline{},
		binaries:   func(tool string) []string { return []string{tool} },
		packages:   func(tool string) string { return tool },
		shell:      shell.Current(),
		path:       os.Getenv("PATH"),
		logger:     slog.Default(),
		now:        time.Now,
		MaxWorkers: 8,
		Timeout:    DefaultTimeout,
	}
}

// SetLogger sets the logger.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetConfirmer sets who approves removals in aggressive mode.
func (r *Reconciler) SetConfirmer(c breaking.Confirmer) {
	if c != nil {
		r.confirmer = c
	}
}

// SetCatalog uses c for binary and package names.
func (r *Reconciler) SetCatalog(c *catalog.Catalog) {
	r.binaries = func(tool string) []string {
		if en, ok := c.Get(tool); ok {
			return en.Binaries()
		}
		return []string{tool}
	}
	r.packages = func(tool string) string {
		if en, ok := c.Get(tool); ok && en.Package != "" {
			return en.Package
		}
		return tool
	}
}

// SetPath overrides the PATH that is searched.
func (r *Reconciler) SetPath(path string) {
	r.path = path
	r.ClearCache()
}

// SetShell overrides the shell guidance is written for.
func (r *Reconciler) SetShell(k shell.Kind) {
	r.shell = k
}

// ClearCache forgets every detection result.
func (r *Reconciler) ClearCache() {
	r.detections.Clear()
}

// Invalidate forgets the detection result for tool.
func (r *Reconciler) Invalidate(tool string) {
	r.detections.Delete(tool)
}

// Reconcile inspects every installation of tool and acts according to
// mode. Failures are reported in the result, never returned.
func (r *Reconciler) Reconcile(ctx context.Context, tool string, mode Mode, opts Options) *Result {
	start := r.now()
	res := &Result{Tool: tool, ActionTaken: ActionNone}
	finish := func(action Action, err error) *Result {
		res.ActionTaken = action
		res.Success = err == nil
		if err != nil {
			res.ErrorMessage = err.Error()
		}
		res.DurationSeconds = r.now().Sub(start).Seconds()
		return res
	}

	if mode == Aggressive && IsProtected(tool) {
		return finish(ActionBlocked, fmt.Errorf("%w: %s", ErrProtected, tool))
	}

	res.Installations = r.Detect(ctx, tool, opts.Candidates)
	if err := ctx.Err(); err != nil {
		return finish(ActionError, err)
	}
	for i := range res.Installations {
		if res.Installations[i].Active {
			active := res.Installations[i]
			res.Active = &active
		}
		if !res.Installations[i].Valid {
			res.PathIssues = append(res.PathIssues, fmt.Sprintf("%s did not report a version", res.Installations[i].Path))
		}
	}
	if len(res.Installations) <= 1 {
		if len(res.Installations) == 1 {
			res.Preferred = res.Active
		}
		return finish(ActionNone, nil)
	}

	ranked := SortByPreference(res.Installations, r.registry.Home())
	preferred := ranked[0]
	res.Preferred = &preferred

	shadowed := res.Active != nil && res.Active.Path != preferred.Path
	if shadowed {
		res.PathIssues = append(res.PathIssues, fmt.Sprintf("%s (%s %s) shadows preferred %s (%s %s)",
			res.Active.Path, res.Active.Method, displayVersion(res.Active.Version),
			preferred.Path, preferred.Method, displayVersion(preferred.Version)))
	}

	if mode != Aggressive {
		if !shadowed {
			return finish(ActionNone, nil)
		}
		res.Guidance = shell.Guidance(r.shell, tool, preferred.Path, res.Active.Path)
		return finish(ActionPathGuidance, nil)
	}

	// An uninstall names a package, not a path: a copy sharing the kept
	// copy's uninstall command cannot be removed without removing both.
	keepCmd, _ := r.uninstallCommand(preferred)
	var doomed []Installation
	for _, in := range ranked[1:] {
		if in.Method == preferred.Method || (keepCmd != nil && r.sameCommandFor(keepCmd, in)) {
			res.PathIssues = append(res.PathIssues, fmt.Sprintf("%s is also managed by %s; remove it manually", in.Path, in.Method))
			continue
		}
		doomed = append(doomed, in)
	}
	if len(doomed) == 0 {
		if shadowed {
			res.Guidance = shell.Guidance(r.shell, tool, preferred.Path, res.Active.Path)
			return finish(ActionPathGuidance, nil)
		}
		return finish(ActionNone, nil)
	}

	if !opts.Yes && !r.confirmer.Confirm(ctx, removalPrompt(tool, preferred, doomed)) {
		return finish(ActionAborted, fmt.Errorf("removal of %d installation(s) of %s not confirmed", len(doomed), tool))
	}

	var errs []string
	ran := make(map[string]error)
	for _, in := range doomed {
		argv, err := r.uninstallCommand(in)
		if err == nil {
			// Two copies from one manager share one uninstall.
			line := strings.Join(argv, " ")
			prev, done := ran[line]
			if !done {
				prev = r.uninstall(ctx, in, argv)
				ran[line] = prev
			}
			err = prev
		}
		if err != nil {
			r.logger.Error("uninstall failed", "tool", tool, "path", in.Path, "method", in.Method, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", in.Path, err))
			continue
		}
		res.Removed = append(res.Removed, in)
	}
	r.Invalidate(tool)

	if shadowed && len(errs) == 0 {
		res.Guidance = fmt.Sprintf("%s now resolves to %s; run 'hash -r' in open shells.", tool, preferred.Path)
	}
	if len(errs) > 0 {
		return finish(ActionError, fmt.Errorf("failed to remove %d installation(s): %s", len(errs), strings.Join(errs, "; ")))
	}
	return finish(ActionRemoved, nil)
}

// ReconcileAll reconciles tools in order. In parallel mode tools are
// inspected concurrently; aggressive mode runs one tool at a time so that
// confirmations are asked in order.
func (r *Reconciler) ReconcileAll(ctx context.Context, tools []string, mode Mode, opts Options) []*Result {
	results := make([]*Result, len(tools))
	if mode == Aggressive {
		for i, tool := range tools {
			results[i] = r.Reconcile(ctx, tool, mode, opts)
		}
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := r.MaxWorkers
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, tool := range tools {
		i, tool := i, tool
		g.Go(func() error {
			res := r.Reconcile(gctx, tool, mode, opts)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Reconciler) uninstallCommand(in Installation) ([]string, error) {
	if in.Method == pkgmgr.Unknown {
		return nil, fmt.Errorf("unknown package manager, remove %s manually", in.Path)
	}
	return r.registry.Command(in.Method, pkgmgr.KindUninstall, r.packages(in.Tool), "")
}

func (r *Reconciler) sameCommandFor(keep []string, in Installation) bool {
	argv, err := r.uninstallCommand(in)
	return err == nil && slices.Equal(keep, argv)
}

func (r *Reconciler) uninstall(ctx context.Context, in Installation, argv []string) error {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	r.logger.Info("removing installation", "tool", in.Tool, "path", in.Path, "command", strings.Join(argv, " "))
	res, err := r.runner.Run(cctx, argv[0], argv[1:]...)
	if err != nil {
		return err
	}
	if !res.Success() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return fmt.Errorf("%s: %s", strings.Join(argv, " "), msg)
	}
	return nil
}

func removalPrompt(tool string, keep Installation, remove []Installation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Keep %s %s at %s (%s) and remove:\n", tool, displayVersion(keep.Version), keep.Path, keep.Method)
	for _, in := range remove {
		fmt.Fprintf(&sb, "  %s %s (%s)\n", in.Path, displayVersion(in.Version), in.Method)
	}
	sb.WriteString("Continue?")
	return sb.String()
}

func displayVersion(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
