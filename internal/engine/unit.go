package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/catalog"
	"github.com/blackwell-systems/toolkeeper/internal/oracle"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/retry"
	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// installed is what was detected about a tool before upgrading it.
type installed struct {
	det  oracle.Detection
	want string // version the upgrade is expected to reach, or "latest"
	err  error
}

func (e *Engine) detect(ctx context.Context, spec resolver.ToolSpec) *installed {
	det, err := e.detector.Installed(ctx, spec.ToolName, e.binaries(spec.ToolName))
	if err != nil {
		return &installed{err: err}
	}
	return &installed{det: det, want: e.wanted(ctx, spec)}
}

// wanted resolves a "latest" target through the upstream oracle when one is
// configured.
func (e *Engine) wanted(ctx context.Context, spec resolver.ToolSpec) string {
	target := spec.Target()
	if target != version.Latest || e.upstream == nil {
		return target
	}
	entry := catalog.Entry{Name: spec.ToolName, Package: spec.Package(), Language: spec.Language}
	if e.entries != nil {
		if en, ok := e.entries.Get(spec.ToolName); ok {
			entry = en
		}
	}
	rel, err := e.upstream.Latest(ctx, entry)
	if err != nil || rel.Version == "" {
		e.logger.Debug("upstream lookup failed", "tool", spec.ToolName, "error", err)
		return target
	}
	return rel.Version
}

func (e *Engine) installUnit(ctx context.Context, spec resolver.ToolSpec, opts Options) *InstallResult {
	rec := installRecord{
		tool:   spec.ToolName,
		pkg:    spec.Package(),
		target: spec.Target(),
		start:  e.now(),
	}
	finish := func(err error) *InstallResult {
		rec.err = err
		rec.end = e.now()
		if err != nil {
			e.logger.Error("install failed", "tool", rec.tool, "manager", rec.manager, "error", err)
		}
		return newInstallResult(rec)
	}

	choice, err := e.selector.Select(ctx, spec.ToolName, spec.Language)
	if err != nil {
		return finish(err)
	}
	rec.manager, rec.reason = choice.Manager, string(choice.Reason)

	argv, err := e.registry.Command(choice.Manager, pkgmgr.KindInstall, rec.pkg, rec.target)
	if err != nil {
		return finish(fmt.Errorf("failed to build install command: %w", err))
	}

	if opts.DryRun {
		rec.dryRun = true
		rec.steps = e.plan(choice.Manager, StepInstall, argv)
		return finish(nil)
	}

	if step := e.checkStep(ctx, choice.Manager); !e.keep(&rec.steps, step) {
		return finish(stepError(step))
	}
	if step := e.commandStep(ctx, StepInstall, argv); !e.keep(&rec.steps, step) {
		return finish(stepError(step))
	}
	step, det := e.verifyStep(ctx, spec.ToolName)
	if !e.keep(&rec.steps, step) {
		return finish(stepError(step))
	}
	rec.installed, rec.path = det.Version, det.Path
	e.checkTarget(spec.ToolName, rec.target, det.Version)

	e.logger.Info("installed", "tool", rec.tool, "manager", rec.manager, "version", rec.installed)
	return finish(nil)
}

// upgradeUnit upgrades one tool. cur may be nil, in which case the tool is
// detected here. single selects the per-tool breaking-change check; bulk
// runs have already partitioned their candidates. When retained is non-nil
// the backup of a successful upgrade is handed to it instead of deleted.
func (e *Engine) upgradeUnit(ctx context.Context, spec resolver.ToolSpec, cur *installed, opts Options, single bool, retained *backupSet) *UpgradeResult {
	rec := upgradeRecord{
		tool:   spec.ToolName,
		pkg:    spec.Package(),
		target: spec.Target(),
		start:  e.now(),
	}
	finish := func(err error) *UpgradeResult {
		rec.err = err
		rec.end = e.now()
		if err != nil && !isBlocked(err) {
			e.logger.Error("upgrade failed", "tool", rec.tool, "manager", rec.manager, "error", err)
		}
		return newUpgradeResult(rec)
	}

	if cur == nil {
		cur = e.detect(ctx, spec)
	}
	if cur.err != nil {
		return finish(fmt.Errorf("cannot upgrade %s: %w", spec.ToolName, cur.err))
	}
	rec.from, rec.path = cur.det.Version, cur.det.Path

	if cur.want != version.Latest && rec.from != "" && version.Equal(rec.from, cur.want) {
		rec.to = rec.from
		rec.message = fmt.Sprintf("already at %s", rec.from)
		return finish(nil)
	}

	rec.breaking = breaking.IsMajorUpgrade(rec.from, cur.want)
	if single && !opts.DryRun {
		if err := e.breaking.Check(ctx, breaking.Candidate{Tool: spec.ToolName, From: rec.from, To: cur.want}); err != nil {
			return finish(err)
		}
	}

	manager, reason, err := e.upgradeManager(ctx, spec, cur.det.Method)
	if err != nil {
		return finish(err)
	}
	rec.manager, rec.reason = manager, reason

	argv, err := e.registry.Command(manager, pkgmgr.KindUpgrade, rec.pkg, rec.target)
	if err != nil {
		return finish(fmt.Errorf("failed to build upgrade command: %w", err))
	}

	if opts.DryRun {
		rec.dryRun = true
		rec.steps = e.plan(manager, StepUpgrade, argv)
		return finish(nil)
	}

	if step := e.checkStep(ctx, manager); !e.keep(&rec.steps, step) {
		return finish(stepError(step))
	}

	bk, err := e.backups.Create(spec.ToolName, cur.det.Path, rec.from, manager)
	if err != nil {
		return finish(fmt.Errorf("failed to back up %s before upgrading: %w", spec.ToolName, err))
	}
	rec.backup = bk

	fail := func(step StepResult) *UpgradeResult {
		err := stepError(step)
		if e.privileged(manager) {
			err = fmt.Errorf("%w (system package, not restored automatically; backup kept at %s)", err, bk.BackupDir)
		} else if rec.rolledBack = e.backups.Restore(bk); rec.rolledBack {
			err = fmt.Errorf("%w (restored %s %s from backup)", err, spec.ToolName, rec.from)
		} else {
			err = fmt.Errorf("%w (restore failed; backup kept at %s)", err, bk.BackupDir)
		}
		return finish(err)
	}

	if step := e.commandStep(ctx, StepUpgrade, argv); !e.keep(&rec.steps, step) {
		return fail(step)
	}
	step, det := e.verifyStep(ctx, spec.ToolName)
	if !e.keep(&rec.steps, step) {
		return fail(step)
	}
	rec.to = det.Version
	if det.Path != "" {
		rec.path = det.Path
	}
	e.checkTarget(spec.ToolName, cur.want, det.Version)

	if retained != nil {
		retained.keep(spec.ToolName, bk)
	} else if err := e.backups.Delete(bk); err != nil {
		e.logger.Warn("could not delete backup", "tool", spec.ToolName, "error", err)
	}
	rec.backup = nil

	e.logger.Info("upgraded", "tool", rec.tool, "manager", manager, "from", rec.from, "to", rec.to)
	return finish(nil)
}

// upgradeManager keeps the manager that owns the current installation when
// it is usable, and otherwise falls back to normal selection.
func (e *Engine) upgradeManager(ctx context.Context, spec resolver.ToolSpec, method string) (string, string, error) {
	if _, ok := e.registry.Get(method); ok && e.registry.IsAvailable(ctx, method) {
		return method, "installed by " + method, nil
	}
	choice, err := e.selector.Select(ctx, spec.ToolName, spec.Language)
	if err != nil {
		return "", "", err
	}
	return choice.Manager, string(choice.Reason), nil
}

func (e *Engine) plan(manager, step string, argv []string) []StepResult {
	var check []string
	if m, ok := e.registry.Get(manager); ok {
		check = m.CheckCommand
	}
	return []StepResult{
		plannedStep(StepCheck, check),
		plannedStep(step, argv),
		plannedStep(StepVerify, nil),
	}
}

// keep appends step to steps and reports whether it succeeded.
func (e *Engine) keep(steps *[]StepResult, step StepResult) bool {
	*steps = append(*steps, step)
	return step.Success
}

func stepError(step StepResult) error {
	return fmt.Errorf("%s step failed after %d attempt(s): %s", step.Step, step.AttemptNumber, step.ErrorMessage)
}

// checkTarget logs when a pinned install ended up at a different version.
func (e *Engine) checkTarget(tool, want, got string) {
	if want == "" || want == version.Latest || got == "" {
		return
	}
	if !version.Equal(want, got) {
		e.logger.Warn("installed version differs from target", "tool", tool, "target", want, "installed", got)
	}
}

func (e *Engine) checkStep(ctx context.Context, manager string) StepResult {
	var argv []string
	if m, ok := e.registry.Get(manager); ok {
		argv = m.CheckCommand
	}

	start := e.now()
	out, attempts, err := e.retry.Do(ctx, func(int) retry.Outcome {
		if e.registry.IsAvailable(ctx, manager) {
			return retry.Outcome{Success: true}
		}
		return retry.Outcome{ExitCode: 1, Stderr: manager + " is not available"}
	})
	return newStepResult(StepCheck, argv, out.Success, out.ExitCode, out.Stderr, attempts, errText(err), start, e.now())
}

func (e *Engine) commandStep(ctx context.Context, name string, argv []string) StepResult {
	start := e.now()
	out, attempts, err := e.retry.Do(ctx, func(n int) retry.Outcome {
		if n > 1 {
			e.logger.Info("retrying", "step", name, "command", strings.Join(argv, " "), "attempt", n)
		}

		cctx, cancel := ctx, context.CancelFunc(func() {})
		if e.Timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, e.Timeout)
		}
		defer cancel()

		res, err := e.runner.Run(cctx, argv[0], argv[1:]...)
		if err != nil {
			return retry.Outcome{ExitCode: -1, Stderr: err.Error()}
		}
		return retry.Outcome{Success: res.Success(), ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	})
	return newStepResult(name, argv, out.Success, out.ExitCode, out.Stderr, attempts, errText(err), start, e.now())
}

func (e *Engine) verifyStep(ctx context.Context, tool string) (StepResult, oracle.Detection) {
	var det oracle.Detection

	start := e.now()
	out, attempts, err := e.retry.Do(ctx, func(int) retry.Outcome {
		d, err := e.detector.Installed(ctx, tool, e.binaries(tool))
		if err != nil {
			return retry.Outcome{ExitCode: 1, Stderr: err.Error()}
		}
		det = d
		return retry.Outcome{Success: true}
	})
	return newStepResult(StepVerify, nil, out.Success, out.ExitCode, out.Stderr, attempts, errText(err), start, e.now()), det
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return "interrupted: " + err.Error()
}
