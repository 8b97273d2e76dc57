package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "toolkeeper" {
		t.Errorf("expected Use to be 'toolkeeper', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if !RootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be true")
	}
	if !RootCmd.SilenceErrors {
		t.Error("expected SilenceErrors to be true")
	}
	if RootCmd.SuggestionsMinimumDistance != 2 {
		t.Errorf("SuggestionsMinimumDistance = %d, want 2", RootCmd.SuggestionsMinimumDistance)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	want := []string{"install", "upgrade", "reconcile", "watch", "plan", "managers", "history", "doctor"}

	have := make(map[string]bool)
	for _, c := range RootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	for _, name := range []string{"db", "config", "catalog", "verbose", "json", "log-format"} {
		if RootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s", name)
		}
	}

	if f := RootCmd.PersistentFlags().ShorthandLookup("v"); f == nil || f.Name != "verbose" {
		t.Error("expected -v to be shorthand for --verbose")
	}
}

func TestGetDBPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name       string
		dbPathFlag string
		want       string
	}{
		{
			name:       "default path",
			dbPathFlag: "",
			want:       filepath.Join(home, ".toolkeeper", "toolkeeper.db"),
		},
		{
			name:       "custom path",
			dbPathFlag: "/tmp/test.db",
			want:       "/tmp/test.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldDBPath := dbPath
			dbPath = tt.dbPathFlag
			defer func() { dbPath = oldDBPath }()

			path, err := getDBPath()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if path != tt.want {
				t.Errorf("expected path to be '%s', got '%s'", tt.want, path)
			}
		})
	}
}

func TestStateDirCreated(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := stateDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(dir, home) {
		t.Errorf("expected state dir under %s, got %s", home, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory '%s' to exist", dir)
	}
}
