package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/progress"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
	"github.com/blackwell-systems/toolkeeper/internal/store"
)

// testEnv isolates a command run: a fresh home, config dir and PATH, and a
// scripted runner in place of real subprocesses.
type testEnv struct {
	home string
	bin  string
	fake *command.FakeRunner
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		home: t.TempDir(),
		bin:  t.TempDir(),
		fake: command.NewFakeRunner(),
	}
	t.Setenv("HOME", env.home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(env.home, ".config"))
	t.Setenv("PATH", env.bin)
	t.Setenv("NO_COLOR", "1")

	oldRunner := newRunner
	newRunner = func() command.Runner { return env.fake }

	oldDB, oldConfig, oldCatalog, oldJSON := dbPath, configPath, catalogPath, jsonOutput
	dbPath = filepath.Join(env.home, "test.db")
	configPath, catalogPath, jsonOutput = "", "", false

	t.Cleanup(func() {
		newRunner = oldRunner
		dbPath, configPath, catalogPath, jsonOutput = oldDB, oldConfig, oldCatalog, oldJSON
	})
	return env
}

// install puts an executable named name on the test PATH.
func (e *testEnv) install(t *testing.T, name string) {
	t.Helper()
	p := filepath.Join(e.bin, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
}

// writeConfig writes the config file newSession picks up by default.
func (e *testEnv) writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := filepath.Join(e.home, ".config", "toolkeeper")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func testCommand(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd
}

func TestParseToolArg(t *testing.T) {
	tests := []struct {
		arg, name, target string
	}{
		{"ripgrep", "ripgrep", ""},
		{"ripgrep@14.1.0", "ripgrep", "14.1.0"},
		{"ruff@latest", "ruff", "latest"},
		{"  fd@9.0.0 ", "fd", "9.0.0"},
		{"@1.0.0", "", "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, target := parseToolArg(tt.arg)
			if name != tt.name || target != tt.target {
				t.Errorf("parseToolArg(%q) = (%q, %q), want (%q, %q)", tt.arg, name, target, tt.name, tt.target)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	setupEnv(t)

	s, err := newSession(context.Background())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		names   []string
		targets map[string]string
		wantErr bool
	}{
		{
			name:  "plain names",
			args:  []string{"ruff", "ripgrep"},
			names: []string{"ruff", "ripgrep"},
		},
		{
			name:    "version pins",
			args:    []string{"ripgrep@14.1.0", "ruff@latest"},
			names:   []string{"ripgrep", "ruff"},
			targets: map[string]string{"ripgrep": "14.1.0", "ruff": "latest"},
		},
		{
			name:  "duplicates collapse",
			args:  []string{"fd", "ruff", "fd"},
			names: []string{"fd", "ruff"},
		},
		{
			name:    "invalid version",
			args:    []string{"ripgrep@not-a-version"},
			wantErr: true,
		},
		{
			name:    "missing name",
			args:    []string{"@1.0.0"},
			wantErr: true,
		},
		{
			name:    "no args",
			args:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := s.parseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(req.names, ",") != strings.Join(tt.names, ",") {
				t.Errorf("names = %v, want %v", req.names, tt.names)
			}
			for name, want := range tt.targets {
				if got := req.targets[name]; got != want {
					t.Errorf("target for %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestSpecVersionPrecedence(t *testing.T) {
	env := setupEnv(t)
	env.writeConfig(t, `
tools:
  ripgrep:
    version: 13.0.0
`)

	s, err := newSession(context.Background())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	tests := []struct {
		name string
		args []string
		tool string
		want string
	}{
		{"config pins ripgrep", []string{"ripgrep"}, "ripgrep", "13.0.0"},
		{"command line beats config", []string{"ripgrep@14.1.0"}, "ripgrep", "14.1.0"},
		{"catalog default", []string{"ruff"}, "ruff", "latest"},
		{"unknown tool gets a bare spec", []string{"mytool"}, "mytool", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := s.parseArgs(tt.args)
			if err != nil {
				t.Fatalf("parseArgs: %v", err)
			}
			spec := s.spec(req, tt.tool)
			if spec.ToolName != tt.tool {
				t.Errorf("ToolName = %q, want %q", spec.ToolName, tt.tool)
			}
			if got := spec.Target(); got != tt.want {
				t.Errorf("Target() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstallSpecsDropsInstalledPrerequisites(t *testing.T) {
	env := setupEnv(t)

	s, err := newSession(context.Background())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	req, err := s.parseArgs([]string{"ruff"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}

	names := func(specs []resolver.ToolSpec) string {
		var out []string
		for _, sp := range specs {
			out = append(out, sp.ToolName)
		}
		return strings.Join(out, ",")
	}

	got := names(s.installSpecs(context.Background(), req))
	if !strings.Contains(got, "uv") || !strings.Contains(got, "ruff") {
		t.Errorf("expected uv and ruff before uv is installed, got %s", got)
	}

	env.install(t, "uv")
	s, err = newSession(context.Background())
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if got := names(s.installSpecs(context.Background(), req)); got != "ruff" {
		t.Errorf("expected only ruff once uv is installed, got %s", got)
	}
}

func TestRunFromSingle(t *testing.T) {
	started := time.Now()

	tests := []struct {
		name      string
		res       engine.Result
		succeeded int
		failed    int
		skipped   int
		blocked   int
		status    string
	}{
		{
			name:      "installed",
			res:       &engine.InstallResult{ToolName: "fd", Status: progress.Success, Success: true, InstalledVersion: "9.0.0"},
			succeeded: 1,
			status:    "success",
		},
		{
			name:   "failed",
			res:    &engine.InstallResult{ToolName: "fd", Status: progress.Failed, ErrorMessage: "boom"},
			failed: 1,
			status: "failed",
		},
		{
			name:    "skipped",
			res:     &engine.UpgradeResult{ToolName: "fd", Status: progress.Skipped},
			skipped: 1,
			status:  "skipped",
		},
		{
			name:    "blocked",
			res:     &engine.UpgradeResult{ToolName: "fd", Status: progress.Skipped, Blocked: true},
			blocked: 1,
			status:  "blocked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runFromSingle(engine.OpInstall, tt.res, false, started)
			if run.Succeeded != tt.succeeded || run.Failed != tt.failed || run.Skipped != tt.skipped || run.Blocked != tt.blocked {
				t.Errorf("counts = %d/%d/%d/%d, want %d/%d/%d/%d",
					run.Succeeded, run.Failed, run.Skipped, run.Blocked,
					tt.succeeded, tt.failed, tt.skipped, tt.blocked)
			}
			if len(run.Results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(run.Results))
			}
			if run.Results[0].Status != tt.status {
				t.Errorf("status = %q, want %q", run.Results[0].Status, tt.status)
			}
			if !run.StartedAt.Equal(started) {
				t.Error("expected StartedAt to be preserved")
			}
		})
	}
}

func TestRunFromBulk(t *testing.T) {
	b := &engine.BulkResult{
		Operation: engine.OpUpgrade,
		Results: []engine.Result{
			&engine.UpgradeResult{ToolName: "ruff", Status: progress.Success, Success: true, PreviousVersion: "0.4.0", NewVersion: "0.5.0"},
			&engine.UpgradeResult{ToolName: "fd", Status: progress.Failed, ErrorMessage: "exit 1"},
		},
		Succeeded:      1,
		Failed:         1,
		RollbackScript: "/tmp/rollback.sh",
		ErrorMessage:   "1 failed",
	}

	run := runFromBulk(b, time.Now())
	if run.Operation != engine.OpUpgrade {
		t.Errorf("Operation = %q", run.Operation)
	}
	if run.Succeeded != 1 || run.Failed != 1 {
		t.Errorf("expected 1 succeeded and 1 failed, got %d and %d", run.Succeeded, run.Failed)
	}
	if run.RollbackScript != "/tmp/rollback.sh" {
		t.Errorf("RollbackScript = %q", run.RollbackScript)
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(run.Results))
	}
	if r := run.Results[0]; r.PreviousVersion != "0.4.0" || r.NewVersion != "0.5.0" {
		t.Errorf("versions = %s -> %s", r.PreviousVersion, r.NewVersion)
	}
	if r := run.Results[1]; r.Success || r.ErrorMessage != "exit 1" {
		t.Errorf("unexpected failed result %+v", r)
	}
}

func TestRecord(t *testing.T) {
	setupEnv(t)

	record(&store.Run{Operation: engine.OpInstall, StartedAt: time.Now(), DryRun: true})
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("expected dry run to leave no database behind")
	}

	record(&store.Run{
		Operation: engine.OpInstall,
		StartedAt: time.Now(),
		Success:   true,
		Succeeded: 1,
		Results:   []store.RunResult{{Tool: "fd", Status: "success", Success: true}},
	})

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Operation != engine.OpInstall {
		t.Errorf("expected one recorded install, got %+v", runs)
	}
}

func TestHasCycle(t *testing.T) {
	tests := []struct {
		name   string
		levels []resolver.Level
		want   bool
	}{
		{
			name: "acyclic",
			levels: []resolver.Level{
				{{ToolName: "uv"}},
				{{ToolName: "ruff", Dependencies: []string{"uv"}}},
			},
			want: false,
		},
		{
			name: "cycle collapsed into last level",
			levels: []resolver.Level{
				{{ToolName: "a", Dependencies: []string{"b"}}, {ToolName: "b", Dependencies: []string{"a"}}},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasCycle(tt.levels); got != tt.want {
				t.Errorf("hasCycle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuplicates(t *testing.T) {
	results := []*reconcile.Result{
		{Tool: "single", Installations: []reconcile.Installation{{Path: "/usr/bin/single"}}},
		{Tool: "double", Installations: []reconcile.Installation{{Path: "/usr/bin/double"}, {Path: "/home/u/.cargo/bin/double"}}},
		{Tool: "broken", ErrorMessage: "detection failed"},
	}

	got := duplicates(results)
	if len(got) != 2 || got[0].Tool != "double" || got[1].Tool != "broken" {
		t.Errorf("duplicates() kept %v", got)
	}
}
