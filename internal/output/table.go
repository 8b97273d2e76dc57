// Package output provides terminal output utilities for toolkeeper.
//
// This package includes:
//   - Table rendering for run results, reconciliations, managers and history
//   - A progress bar driven by the engine's progress tracker
//   - Spinners for indeterminate operations
//
// All table rendering functions use plain characters and ANSI color codes
// for terminal output. Colors are dropped when stdout is not a terminal or
// NO_COLOR is set.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/store"
)

// ANSI color codes for status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// RenderBulkResult renders one row per tool followed by a summary line and,
// when one was written, the rollback script.
func RenderBulkResult(b *engine.BulkResult) string {
	if len(b.Results) == 0 {
		return "No tools to " + b.Operation + ".\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-10s %-12s %-22s %-8s\n",
		"Tool", "Manager", "Status", "Version", "Time"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	var notes []string
	for _, res := range b.Results {
		u := res.Unit()
		status := string(u.Status)
		if up, ok := res.(*engine.UpgradeResult); ok && up.Blocked {
			status = "blocked"
		}
		if b.DryRun && u.Success {
			status = "planned"
		}

		sb.WriteString(fmt.Sprintf("%-20s %-10s %s %-22s %-8s\n",
			truncate(u.Tool, 20),
			dash(u.Manager),
			colorStatus(status, 12),
			truncate(versionColumn(res), 22),
			formatSeconds(u.DurationSeconds)))

		if u.ErrorMessage != "" {
			notes = append(notes, fmt.Sprintf("  %s: %s", u.Tool, firstLine(u.ErrorMessage)))
		} else if up, ok := res.(*engine.UpgradeResult); ok && up.Message != "" {
			notes = append(notes, fmt.Sprintf("  %s: %s", u.Tool, up.Message))
		}
	}

	if len(notes) > 0 {
		sb.WriteString("\n")
		for _, n := range notes {
			sb.WriteString(n)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(RenderBulkSummary(b))
	sb.WriteString("\n")

	if b.RollbackScript != "" {
		sb.WriteString(fmt.Sprintf("Rollback script: %s\n", b.RollbackScript))
	}
	if b.RollbackAttempted {
		if b.RollbackSucceeded {
			sb.WriteString(colorize(colorYellow, "Run rolled back."))
		} else {
			sb.WriteString(colorize(colorRed, "Rollback incomplete; review the script above."))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderBulkSummary renders a one-line breakdown of a run.
// Format: "install: 3 succeeded · 1 failed · 0 skipped · 0 blocked (12.4s)"
func RenderBulkSummary(b *engine.BulkResult) string {
	verb := "succeeded"
	if b.DryRun {
		verb = "planned"
	}
	return fmt.Sprintf("%s: %s \u00b7 %s \u00b7 %s \u00b7 %s (%s)",
		b.Operation,
		colorize(colorGreen, fmt.Sprintf("%d %s", b.Succeeded, verb)),
		colorize(colorRed, fmt.Sprintf("%d failed", b.Failed)),
		colorize(colorGray, fmt.Sprintf("%d skipped", b.Skipped)),
		colorize(colorYellow, fmt.Sprintf("%d blocked", b.Blocked)),
		formatSeconds(b.DurationSeconds))
}

// RenderSteps renders the steps of a single install or upgrade.
func RenderSteps(steps []engine.StepResult) string {
	var sb strings.Builder
	for _, s := range steps {
		mark := colorize(colorGreen, "ok")
		switch {
		case s.DryRun:
			mark = colorize(colorGray, "plan")
		case !s.Success:
			mark = colorize(colorRed, "fail")
		}
		line := fmt.Sprintf("  [%s] %-8s", mark, s.Step)
		if len(s.Command) > 0 {
			line += " " + strings.Join(s.Command, " ")
		}
		if s.AttemptNumber > 1 {
			line += fmt.Sprintf(" (attempt %d)", s.AttemptNumber)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if !s.Success && s.ErrorMessage != "" {
			sb.WriteString("           ")
			sb.WriteString(firstLine(s.ErrorMessage))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderInstallResult renders a single install.
func RenderInstallResult(r *engine.InstallResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s via %s", r.ToolName, displayVersion(r.TargetVersion), dash(r.PackageManager)))
	if r.SelectionReason != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", r.SelectionReason))
	}
	sb.WriteString("\n")
	sb.WriteString(RenderSteps(r.Steps))

	switch {
	case r.DryRun && r.Success:
		sb.WriteString("Dry run: nothing was installed.\n")
	case r.Success:
		sb.WriteString(colorize(colorGreen, fmt.Sprintf("Installed %s %s", r.ToolName, displayVersion(r.InstalledVersion))))
		if r.BinaryPath != "" {
			sb.WriteString(" at " + r.BinaryPath)
		}
		sb.WriteString("\n")
	default:
		sb.WriteString(colorize(colorRed, fmt.Sprintf("Failed to install %s: %s", r.ToolName, firstLine(r.ErrorMessage))))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderUpgradeResult renders a single upgrade.
func RenderUpgradeResult(r *engine.UpgradeResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s -> %s via %s", r.ToolName,
		displayVersion(r.PreviousVersion), displayVersion(r.TargetVersion), dash(r.PackageManager)))
	if r.BreakingChange {
		sb.WriteString(" " + colorize(colorYellow, "[major]"))
	}
	sb.WriteString("\n")
	sb.WriteString(RenderSteps(r.Steps))

	switch {
	case r.Blocked:
		sb.WriteString(colorize(colorYellow, fmt.Sprintf("Skipped %s: %s", r.ToolName, r.ErrorMessage)))
	case r.Message != "":
		sb.WriteString(fmt.Sprintf("%s is %s", r.ToolName, r.Message))
	case r.DryRun && r.Success:
		sb.WriteString("Dry run: nothing was upgraded.")
	case r.Success:
		sb.WriteString(colorize(colorGreen, fmt.Sprintf("Upgraded %s to %s", r.ToolName, displayVersion(r.NewVersion))))
	default:
		sb.WriteString(colorize(colorRed, fmt.Sprintf("Failed to upgrade %s: %s", r.ToolName, firstLine(r.ErrorMessage))))
		if r.RolledBack {
			sb.WriteString("\n" + fmt.Sprintf("Restored %s %s from backup", r.ToolName, displayVersion(r.PreviousVersion)))
		} else if r.Backup != nil {
			sb.WriteString("\n" + fmt.Sprintf("Backup kept at %s", r.Backup.BackupDir))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderPlan renders dependency levels in execution order.
func RenderPlan(levels []resolver.Level) string {
	if len(levels) == 0 {
		return "Nothing to do.\n"
	}

	var sb strings.Builder
	for i, level := range levels {
		sb.WriteString(fmt.Sprintf("Level %d:\n", i+1))
		for _, spec := range level {
			line := fmt.Sprintf("  %-20s %s", spec.ToolName, displayVersion(spec.Target()))
			if spec.Package() != spec.ToolName {
				line += fmt.Sprintf(" (package %s)", spec.Package())
			}
			if len(spec.Dependencies) > 0 {
				line += colorize(colorGray, " after "+strings.Join(spec.Dependencies, ", "))
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderManagers renders the registry with the availability of each
// manager on this machine.
func RenderManagers(managers []*pkgmgr.Manager, available func(name string) bool) string {
	if len(managers) == 0 {
		return "No package managers registered.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %-10s %-11s %s\n", "Manager", "Category", "Available", "Languages"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, m := range managers {
		avail := colorize(colorGray, fmt.Sprintf("%-11s", "no"))
		if available(m.Name) {
			avail = colorize(colorGreen, fmt.Sprintf("%-11s", "yes"))
		}
		langs := "any"
		if len(m.Languages) > 0 {
			langs = strings.Join(m.Languages, ", ")
		}
		category := string(m.Category)
		if m.Privileged {
			category += "*"
		}
		sb.WriteString(fmt.Sprintf("%-10s %-10s %s %s\n", m.Name, category, avail, langs))
	}
	return sb.String()
}

// RenderReconcileResults renders the installations found for each tool and
// what was done about them.
func RenderReconcileResults(results []*reconcile.Result) string {
	if len(results) == 0 {
		return "No tools to reconcile.\n"
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", r.Tool, colorAction(r.ActionTaken)))

		for _, in := range r.Installations {
			marker := " "
			switch {
			case in.Active:
				marker = "*"
			case r.Preferred != nil && in.Path == r.Preferred.Path:
				marker = "+"
			}
			sb.WriteString(fmt.Sprintf("  %s %-10s %-12s %s\n", marker, in.Method, displayVersion(in.Version), in.Path))
		}
		for _, issue := range r.PathIssues {
			sb.WriteString(colorize(colorYellow, "  ! "+issue))
			sb.WriteString("\n")
		}
		for _, in := range r.Removed {
			sb.WriteString(fmt.Sprintf("  removed %s (%s)\n", in.Path, in.Method))
		}
		if r.Guidance != "" {
			sb.WriteString("\n")
			for _, line := range strings.Split(strings.TrimRight(r.Guidance, "\n"), "\n") {
				sb.WriteString("  " + line + "\n")
			}
		}
		if r.ErrorMessage != "" {
			sb.WriteString(colorize(colorRed, "  "+firstLine(r.ErrorMessage)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderRuns renders recorded runs, newest first.
func RenderRuns(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-6s %-9s %-15s %-9s %-6s %-7s %-8s\n",
		"ID", "Op", "Started", "Result", "OK", "Failed", "Time"))
	sb.WriteString(strings.Repeat("─", 66))
	sb.WriteString("\n")

	for _, r := range runs {
		result := "success"
		switch {
		case r.DryRun:
			result = "dry-run"
		case r.RollbackAttempted:
			result = "rollback"
		case !r.Success:
			result = "failed"
		}
		sb.WriteString(fmt.Sprintf("%-6d %-9s %-15s %s %-6d %-7d %-8s\n",
			r.ID,
			r.Operation,
			truncate(formatRelativeTime(r.StartedAt), 15),
			colorStatus(result, 9),
			r.Succeeded,
			r.Failed,
			formatSeconds(r.DurationSeconds)))
	}
	return sb.String()
}

// RenderRun renders one run with its per-tool results.
func RenderRun(r *store.Run) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run %d: %s, %s (%s)\n", r.ID, r.Operation,
		r.StartedAt.Local().Format(time.DateTime), formatSeconds(r.DurationSeconds)))
	for _, res := range r.Results {
		sb.WriteString(fmt.Sprintf("  %-20s %-10s %s %s\n",
			truncate(res.Tool, 20), dash(res.Manager), colorStatus(res.Status, 9),
			versionChange(res.PreviousVersion, res.NewVersion)))
		if res.ErrorMessage != "" {
			sb.WriteString("      " + firstLine(res.ErrorMessage) + "\n")
		}
	}
	if r.RollbackScript != "" {
		sb.WriteString(fmt.Sprintf("Rollback script: %s\n", r.RollbackScript))
	}
	return sb.String()
}

// RenderToolHistory renders every recorded install or upgrade of a tool.
func RenderToolHistory(tool string, events []store.ToolEvent) string {
	if len(events) == 0 {
		return fmt.Sprintf("No history for %s.\n", tool)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("History for %s:\n", tool))
	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("  %-15s %-8s %-10s %s %s\n",
			truncate(formatRelativeTime(ev.StartedAt), 15),
			ev.Operation,
			dash(ev.Manager),
			colorStatus(ev.Status, 9),
			versionChange(ev.PreviousVersion, ev.NewVersion)))
	}
	return sb.String()
}

// RenderReconciliations renders recorded reconcile passes.
func RenderReconciliations(recs []*store.Reconciliation) string {
	if len(recs) == 0 {
		return "No reconciliations recorded.\n"
	}

	// Group by tool so repeated passes read together.
	sorted := make([]*store.Reconciliation, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tool < sorted[j].Tool
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-11s %-14s %-6s %s\n", "Tool", "Mode", "Action", "Found", "When"))
	sb.WriteString(strings.Repeat("─", 70))
	sb.WriteString("\n")
	for _, r := range sorted {
		sb.WriteString(fmt.Sprintf("%-20s %-11s %s %-6d %s\n",
			truncate(r.Tool, 20),
			r.Mode,
			colorAction14(reconcile.Action(r.Action)),
			r.Installations,
			formatRelativeTime(r.CreatedAt)))
	}
	return sb.String()
}

// colorStatus pads status to width before coloring so columns stay aligned.
func colorStatus(status string, width int) string {
	padded := fmt.Sprintf("%-*s", width, status)
	switch status {
	case string(progress.Success), "planned":
		return colorize(colorGreen, padded)
	case string(progress.Failed), "rollback":
		return colorize(colorRed, padded)
	case "blocked":
		return colorize(colorYellow, padded)
	case string(progress.Skipped), "dry-run":
		return colorize(colorGray, padded)
	default:
		return padded
	}
}

func colorAction(a reconcile.Action) string {
	return actionColor(a, string(a))
}

func colorAction14(a reconcile.Action) string {
	return actionColor(a, fmt.Sprintf("%-14s", a))
}

func actionColor(a reconcile.Action, text string) string {
	switch a {
	case reconcile.ActionNone:
		return colorize(colorGreen, text)
	case reconcile.ActionPathGuidance, reconcile.ActionBlocked, reconcile.ActionAborted:
		return colorize(colorYellow, text)
	case reconcile.ActionError:
		return colorize(colorRed, text)
	default:
		return text
	}
}

func versionColumn(res engine.Result) string {
	switch r := res.(type) {
	case *engine.UpgradeResult:
		to := r.NewVersion
		if to == "" {
			to = r.TargetVersion
		}
		return versionChange(r.PreviousVersion, to)
	case *engine.InstallResult:
		if r.InstalledVersion != "" {
			return r.InstalledVersion
		}
		return displayVersion(r.TargetVersion)
	}
	return "-"
}

func versionChange(from, to string) string {
	switch {
	case from == "" && to == "":
		return "-"
	case from == "" || from == to:
		return displayVersion(to)
	case to == "":
		return displayVersion(from)
	default:
		return from + " -> " + to
	}
}

func displayVersion(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatSeconds renders a duration in seconds compactly: 850ms, 4.2s, 3m05s.
func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d.Minutes())
		return fmt.Sprintf("%dm%02ds", m, int(d.Seconds())-m*60)
	}
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		return t.Local().Format(time.DateOnly)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
