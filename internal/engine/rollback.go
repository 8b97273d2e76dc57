package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
)

// directUninstall lists the managers whose uninstall commands are safe to
// run unattended from a rollback script.
var directUninstall = map[string]bool{
	"cargo":  true,
	"pipx":   true,
	"uv":     true,
	"brew":   true,
	"npm":    true,
	"pip":    true,
	"gem":    true,
	"rustup": true,
}

// rollbackEntry is one successful unit the script can undo.
type rollbackEntry struct {
	Tool     string
	Package  string
	Version  string // version installed by the run
	Previous string // version before an upgrade, empty for installs
	Manager  string
}

// rollbackScript renders a shell script undoing entries. For installs each
// tool is uninstalled; for upgrades the previous version is reinstalled.
// Privileged managers only get commented instructions.
func (e *Engine) rollbackScript(operation string, entries []rollbackEntry) string {
	var sb strings.Builder

	sb.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&sb, "# toolkeeper rollback script for %s\n", operation)
	fmt.Fprintf(&sb, "# Generated: %s\n", e.now().Format(time.RFC3339))
	sb.WriteString("#\n")
	for _, en := range entries {
		if en.Previous != "" {
			fmt.Fprintf(&sb, "# Tool: %s  Version: %s -> %s  Manager: %s\n", en.Tool, en.Previous, displayVersion(en.Version), en.Manager)
		} else {
			fmt.Fprintf(&sb, "# Tool: %s  Version: %s  Manager: %s\n", en.Tool, displayVersion(en.Version), en.Manager)
		}
	}
	sb.WriteString("\nstatus=0\n\n")

	for _, en := range entries {
		sb.WriteString(e.rollbackLine(operation, en))
		sb.WriteString("\n")
	}

	sb.WriteString("\nexit $status\n")
	return sb.String()
}

func (e *Engine) rollbackLine(operation string, en rollbackEntry) string {
	kind, target := pkgmgr.KindUninstall, ""
	if operation == OpUpgrade {
		if en.Previous == "" {
			return fmt.Sprintf("# %s: previous version unknown, cannot roll back automatically", en.Tool)
		}
		kind, target = e.downgradeKind(en.Manager), en.Previous
	}

	argv, err := e.registry.Command(en.Manager, kind, en.Package, target)
	if err != nil {
		return fmt.Sprintf("# %s: no automatic rollback for %s (%v)", en.Tool, en.Manager, err)
	}
	cmd := shellJoin(argv)

	m, _ := e.registry.Get(en.Manager)
	if m != nil && m.Privileged {
		if argv[0] != "sudo" {
			cmd = "sudo " + cmd
		}
		return fmt.Sprintf("# manual (requires sudo): %s", cmd)
	}
	if operation == OpInstall && !directUninstall[en.Manager] {
		return fmt.Sprintf("# %s: remove manually (%s)", en.Tool, cmd)
	}
	return fmt.Sprintf("%s || status=1", cmd)
}

// downgradeKind picks the command that reinstalls a specific older
// version: a forced pinned upgrade when the manager has one, otherwise a
// pinned install.
func (e *Engine) downgradeKind(manager string) pkgmgr.CommandKind {
	if m, ok := e.registry.Get(manager); ok && m.UpgradePinned != nil {
		return pkgmgr.KindUpgrade
	}
	return pkgmgr.KindInstall
}

// writeRollbackScript writes the script into the engine's script directory
// with mode 0755 and returns its path.
func (e *Engine) writeRollbackScript(operation string, entries []rollbackEntry) (string, error) {
	if err := os.MkdirAll(e.ScriptDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}

	f, err := os.CreateTemp(e.ScriptDir, fmt.Sprintf("toolkeeper-rollback-%s-*.sh", operation))
	if err != nil {
		return "", fmt.Errorf("failed to create rollback script: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(e.rollbackScript(operation, entries)); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write rollback script: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write rollback script: %w", err)
	}
	if err := os.Chmod(path, 0755); err != nil {
		return "", fmt.Errorf("failed to chmod rollback script: %w", err)
	}
	return path, nil
}

// runRollbackScript executes the script with sh. The run is not bound to
// ctx's cancellation so an interrupt cannot leave a half-applied rollback.
func (e *Engine) runRollbackScript(ctx context.Context, path string) bool {
	res, err := e.runner.Run(context.WithoutCancel(ctx), "sh", path)
	if err != nil {
		e.logger.Error("rollback script failed to start", "script", path, "error", err)
		return false
	}
	if !res.Success() {
		e.logger.Error("rollback script failed", "script", path, "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return false
	}
	e.logger.Info("rollback script completed", "script", path)
	return true
}

// shellJoin quotes argv for a POSIX shell.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=@:+,%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func displayVersion(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
