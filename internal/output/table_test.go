package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/toolkeeper/internal/backup"
	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/store"
)

func sampleBulk() *engine.BulkResult {
	return &engine.BulkResult{
		Operation: engine.OpUpgrade,
		Results: []engine.Result{
			&engine.UpgradeResult{ToolName: "ripgrep", PackageManager: "cargo", PreviousVersion: "13.0.0",
				TargetVersion: "14.1.0", NewVersion: "14.1.0", Status: progress.Success, Success: true, DurationSeconds: 4.2},
			&engine.UpgradeResult{ToolName: "ruff", PackageManager: "uv", PreviousVersion: "0.4.1",
				TargetVersion: "1.0.0", Blocked: true, BreakingChange: true, Status: progress.Skipped,
				ErrorMessage: "breaking change blocked"},
			&engine.InstallResult{ToolName: "jq", PackageManager: "apt", TargetVersion: "latest",
				Status: progress.Failed, ErrorMessage: "install step failed\nE: Unable to locate package"},
		},
		Succeeded:      1,
		Failed:         1,
		Blocked:        1,
		RollbackScript: "/tmp/toolkeeper-rollback-upgrade-1.sh",
		ErrorMessage:   "1 tool failed, 1 tool blocked",
	}
}

func TestRenderBulkResult(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	out := RenderBulkResult(sampleBulk())

	for _, want := range []string{
		"Tool", "Manager", "Status",
		"ripgrep", "13.0.0 -> 14.1.0", "4.2s",
		"blocked",
		"jq: install step failed",
		"upgrade: 1 succeeded \u00b7 1 failed \u00b7 0 skipped \u00b7 1 blocked",
		"Rollback script: /tmp/toolkeeper-rollback-upgrade-1.sh",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Unable to locate") {
		t.Errorf("only the first line of an error should be shown:\n%s", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("NO_COLOR output should not contain escape codes")
	}
}

func TestRenderBulkResult_Empty(t *testing.T) {
	got := RenderBulkResult(&engine.BulkResult{Operation: "install"})
	if got != "No tools to install.\n" {
		t.Errorf("got %q", got)
	}
}

func TestRenderBulkResult_DryRun(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	b := &engine.BulkResult{
		Operation: engine.OpInstall,
		DryRun:    true,
		Succeeded: 1,
		Results: []engine.Result{
			&engine.InstallResult{ToolName: "fd", PackageManager: "cargo", TargetVersion: "latest",
				Status: progress.Success, Success: true, DryRun: true},
		},
	}
	out := RenderBulkResult(b)
	if !strings.Contains(out, "planned") || !strings.Contains(out, "1 planned") {
		t.Errorf("dry runs should read as planned:\n%s", out)
	}
}

func TestRenderBulkResult_Rollback(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	b := sampleBulk()
	b.RollbackAttempted = true
	if out := RenderBulkResult(b); !strings.Contains(out, "Rollback incomplete") {
		t.Errorf("failed rollback not reported:\n%s", out)
	}
	b.RollbackSucceeded = true
	if out := RenderBulkResult(b); !strings.Contains(out, "Run rolled back.") {
		t.Errorf("rollback not reported:\n%s", out)
	}
}

func TestRenderInstallResult(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	r := &engine.InstallResult{
		ToolName:         "ripgrep",
		PackageManager:   "cargo",
		SelectionReason:  "language hierarchy",
		TargetVersion:    "latest",
		InstalledVersion: "14.1.0",
		BinaryPath:       "/home/u/.cargo/bin/rg",
		Status:           progress.Success,
		Success:          true,
		Steps: []engine.StepResult{
			{Step: engine.StepCheck, Command: []string{"cargo", "--version"}, Success: true, AttemptNumber: 1},
			{Step: engine.StepInstall, Command: []string{"cargo", "install", "ripgrep"}, Success: true, AttemptNumber: 2},
			{Step: engine.StepVerify, Success: true, AttemptNumber: 1},
		},
	}
	out := RenderInstallResult(r)

	for _, want := range []string{
		"ripgrep latest via cargo (language hierarchy)",
		"[ok] install  cargo install ripgrep (attempt 2)",
		"Installed ripgrep 14.1.0 at /home/u/.cargo/bin/rg",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestRenderInstallResult_Failed(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	r := &engine.InstallResult{
		ToolName:       "jq",
		PackageManager: "apt",
		TargetVersion:  "latest",
		Status:         progress.Failed,
		ErrorMessage:   "E: Unable to locate package jq",
		Steps: []engine.StepResult{
			{Step: engine.StepInstall, Command: []string{"sudo", "apt-get", "install", "-y", "jq"}, ExitCode: 100,
				ErrorMessage: "E: Unable to locate package jq", AttemptNumber: 1},
		},
	}
	out := RenderInstallResult(r)
	if !strings.Contains(out, "[fail] install") || !strings.Contains(out, "Failed to install jq: E: Unable to locate package jq") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRenderUpgradeResult(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		name string
		r    *engine.UpgradeResult
		want string
	}{
		{
			name: "success",
			r: &engine.UpgradeResult{ToolName: "rg", PackageManager: "cargo", PreviousVersion: "13.0.0",
				TargetVersion: "14.0.0", NewVersion: "14.0.0", BreakingChange: true, Success: true, Status: progress.Success},
			want: "Upgraded rg to 14.0.0",
		},
		{
			name: "blocked",
			r: &engine.UpgradeResult{ToolName: "rg", PreviousVersion: "13.0.0", TargetVersion: "14.0.0",
				Blocked: true, Status: progress.Skipped, ErrorMessage: "major upgrade rejected"},
			want: "Skipped rg: major upgrade rejected",
		},
		{
			name: "already current",
			r: &engine.UpgradeResult{ToolName: "rg", PreviousVersion: "14.1.0", TargetVersion: "latest",
				Message: "already at 14.1.0", Success: true, Status: progress.Success},
			want: "rg is already at 14.1.0",
		},
		{
			name: "rolled back",
			r: &engine.UpgradeResult{ToolName: "rg", PreviousVersion: "13.0.0", TargetVersion: "14.0.0",
				RolledBack: true, Status: progress.Failed, ErrorMessage: "verify failed"},
			want: "Restored rg 13.0.0 from backup",
		},
		{
			name: "backup kept",
			r: &engine.UpgradeResult{ToolName: "jq", PreviousVersion: "1.6", TargetVersion: "1.7",
				Backup: &backup.UpgradeBackup{BackupDir: "/tmp/bk/jq"}, Status: progress.Failed, ErrorMessage: "exit 100"},
			want: "Backup kept at /tmp/bk/jq",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderUpgradeResult(tt.r)
			if !strings.Contains(out, tt.want) {
				t.Errorf("output should contain %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestRenderPlan(t *testing.T) {
	levels := []resolver.Level{
		{{ToolName: "node", TargetVersion: "20.1.0"}},
		{{ToolName: "tsc", PackageName: "typescript", Dependencies: []string{"node"}}},
	}
	t.Setenv("NO_COLOR", "1")
	out := RenderPlan(levels)

	for _, want := range []string{"Level 1:", "node", "20.1.0", "Level 2:", "(package typescript)", "after node"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
	if RenderPlan(nil) != "Nothing to do.\n" {
		t.Error("empty plan mismatch")
	}
}

func TestRenderManagers(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	managers := []*pkgmgr.Manager{
		{Name: "cargo", Category: pkgmgr.CategoryVendor, Languages: []string{"rust"}},
		{Name: "apt", Category: pkgmgr.CategorySystem, Privileged: true},
	}
	out := RenderManagers(managers, func(name string) bool { return name == "cargo" })

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got:\n%s", out)
	}
	if !strings.Contains(lines[2], "cargo") || !strings.Contains(lines[2], "yes") || !strings.Contains(lines[2], "rust") {
		t.Errorf("cargo row = %q", lines[2])
	}
	if !strings.Contains(lines[3], "system*") || !strings.Contains(lines[3], "no") || !strings.Contains(lines[3], "any") {
		t.Errorf("apt row = %q", lines[3])
	}
}

func TestRenderReconcileResults(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	preferred := reconcile.Installation{Tool: "rg", Version: "14.1.0", Method: "cargo", Path: "/home/u/.cargo/bin/rg", Valid: true, PathIndex: 1}
	active := reconcile.Installation{Tool: "rg", Version: "13.0.0", Method: "apt", Path: "/usr/bin/rg", Active: true, Valid: true}

	results := []*reconcile.Result{
		{
			Tool:          "rg",
			Installations: []reconcile.Installation{active, preferred},
			Preferred:     &preferred,
			Active:        &active,
			PathIssues:    []string{"/usr/bin/rg shadows /home/u/.cargo/bin/rg"},
			ActionTaken:   reconcile.ActionPathGuidance,
			Guidance:      "Add this line to ~/.profile:\n  export PATH=\"/home/u/.cargo/bin:$PATH\"\n",
			Success:       true,
		},
		{Tool: "python", ActionTaken: reconcile.ActionBlocked, ErrorMessage: "refusing to remove installations of a protected system tool"},
	}
	out := RenderReconcileResults(results)

	for _, want := range []string{
		"rg: path_guidance",
		"* apt",
		"+ cargo",
		"! /usr/bin/rg shadows",
		"  export PATH=",
		"python: blocked",
		"refusing to remove",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestRenderRuns(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	runs := []*store.Run{
		{ID: 2, Operation: "upgrade", StartedAt: time.Now().Add(-2 * time.Hour), Success: false, Failed: 1, RollbackAttempted: true},
		{ID: 1, Operation: "install", StartedAt: time.Now().Add(-3 * 24 * time.Hour), Success: true, Succeeded: 3, DurationSeconds: 75},
	}
	out := RenderRuns(runs)

	for _, want := range []string{"rollback", "2 hours ago", "3 days ago", "success", "1m15s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
	if RenderRuns(nil) != "No runs recorded.\n" {
		t.Error("empty runs mismatch")
	}
}

func TestRenderRun(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	r := &store.Run{
		ID: 7, Operation: "upgrade", StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RollbackScript: "/tmp/rb.sh",
		Results: []store.RunResult{
			{Tool: "rg", Manager: "cargo", Status: "success", PreviousVersion: "13.0.0", NewVersion: "14.0.0"},
			{Tool: "fd", Status: "failed", ErrorMessage: "exit 101"},
		},
	}
	out := RenderRun(r)
	for _, want := range []string{"Run 7: upgrade", "13.0.0 -> 14.0.0", "exit 101", "Rollback script: /tmp/rb.sh"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestRenderToolHistory(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	events := []store.ToolEvent{
		{RunResult: store.RunResult{Tool: "ruff", Manager: "uv", Status: "success", PreviousVersion: "0.4.1", NewVersion: "0.5.0"},
			Operation: "upgrade", StartedAt: time.Now().Add(-time.Hour)},
		{RunResult: store.RunResult{Tool: "ruff", Manager: "uv", Status: "success", NewVersion: "0.4.1"},
			Operation: "install", StartedAt: time.Now().Add(-48 * time.Hour)},
	}
	out := RenderToolHistory("ruff", events)
	for _, want := range []string{"History for ruff:", "0.4.1 -> 0.5.0", "install", "2 days ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
	if RenderToolHistory("rg", nil) != "No history for rg.\n" {
		t.Error("empty history mismatch")
	}
}

func TestRenderReconciliations(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	recs := []*store.Reconciliation{
		{Tool: "rg", Mode: "parallel", Action: "path_guidance", Installations: 2, CreatedAt: time.Now()},
		{Tool: "fd", Mode: "aggressive", Action: "removed", Installations: 2, CreatedAt: time.Now()},
	}
	out := RenderReconciliations(recs)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.HasPrefix(lines[2], "fd") || !strings.HasPrefix(lines[3], "rg") {
		t.Errorf("rows should be grouped by tool:\n%s", out)
	}
	if recs[0].Tool != "rg" {
		t.Error("input slice should not be reordered")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	r := &engine.InstallResult{ToolName: "fd", Status: progress.Success, Success: true}
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got["tool"] != "fd" || got["error_message"] != nil {
		t.Errorf("unexpected JSON: %v", got)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Errorf("expected trailing newline")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "-"},
		{0.25, "250ms"},
		{4.2, "4.2s"},
		{185, "3m05s"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionChange(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"", "", "-"},
		{"", "1.0.0", "1.0.0"},
		{"1.0.0", "1.0.0", "1.0.0"},
		{"1.0.0", "", "1.0.0"},
		{"1.0.0", "2.0.0", "1.0.0 -> 2.0.0"},
	}
	for _, tt := range tests {
		if got := versionChange(tt.from, tt.to); got != tt.want {
			t.Errorf("versionChange(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	old := now.Add(-90 * 24 * time.Hour)

	tests := []struct {
		name string
		time time.Time
		want string
	}{
		{"zero time", time.Time{}, "never"},
		{"just now", now.Add(-30 * time.Second), "just now"},
		{"one minute ago", now.Add(-1 * time.Minute), "1 minute ago"},
		{"minutes ago", now.Add(-45 * time.Minute), "45 minutes ago"},
		{"one hour ago", now.Add(-1 * time.Hour), "1 hour ago"},
		{"hours ago", now.Add(-3 * time.Hour), "3 hours ago"},
		{"one day ago", now.Add(-24 * time.Hour), "1 day ago"},
		{"days ago", now.Add(-5 * 24 * time.Hour), "5 days ago"},
		{"one week ago", now.Add(-7 * 24 * time.Hour), "1 week ago"},
		{"weeks ago", now.Add(-14 * 24 * time.Hour), "2 weeks ago"},
		{"older", old, old.Local().Format(time.DateOnly)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRelativeTime(tt.time)
			if got != tt.want {
				t.Errorf("formatRelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"equal to max", "hello", 5, "hello"},
		{"longer than max", "hello world", 8, "hello..."},
		{"very short max", "hello", 2, "he"},
		{"max of 3", "hello", 3, "hel"},
		{"max of 4", "hello world", 4, "h..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
