package selection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/blackwell-systems/toolkeeper/internal/command"
	"github.com/blackwell-systems/toolkeeper/internal/config"
	"github.com/blackwell-systems/toolkeeper/internal/environment"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
)

// registryWith returns a registry where only the named managers respond.
func registryWith(available ...string) *pkgmgr.Registry {
	f := command.NewFakeRunner()
	reg := pkgmgr.NewRegistry(f)
	for _, name := range available {
		m, _ := reg.Get(name)
		f.On(strings.Join(m.CheckCommand, " "), command.Response{Stdout: name + " 1.0"})
	}
	return reg
}

func TestSelect(t *testing.T) {
	cfg := config.Default()
	cfg.Tools["ripgrep"] = config.ToolConfig{Method: "cargo", Fallback: "apt"}
	cfg.Tools["black"] = config.ToolConfig{Method: "pip"}
	cfg.Tools["jq"] = config.ToolConfig{Fallback: "apt"}
	cfg.Preferences.PackageManagers["python"] = []string{"pipx", "pip"}

	tests := []struct {
		name      string
		available []string
		mode      environment.Mode
		tool      string
		language  string
		want      Choice
	}{
		{
			name:      "override available",
			available: []string{"cargo", "apt"},
			tool:      "ripgrep", language: "rust",
			want: Choice{"cargo", ReasonOverride},
		},
		{
			name:      "override unavailable falls through to default hierarchy",
			available: []string{"uv", "pipx"},
			tool:      "black", language: "python",
			want: Choice{"pipx", ReasonCustom},
		},
		{
			name:      "custom hierarchy beats default",
			available: []string{"uv", "pip"},
			tool:      "ruff", language: "python",
			want: Choice{"pip", ReasonCustom},
		},
		{
			name:      "default hierarchy vendor first on workstation",
			available: []string{"github", "brew", "apt"},
			mode:      environment.Workstation,
			tool:      "fzf",
			want:      Choice{"github", ReasonDefault},
		},
		{
			name:      "server prefers system managers",
			available: []string{"github", "apt"},
			mode:      environment.Server,
			tool:      "fzf",
			want:      Choice{"apt", ReasonDefault},
		},
		{
			name:      "ci keeps vendor order",
			available: []string{"github", "apt"},
			mode:      environment.CI,
			tool:      "fzf",
			want:      Choice{"github", ReasonDefault},
		},
		{
			name:      "fallback when hierarchy exhausted",
			available: []string{"apt"},
			tool:      "jq", language: "rust",
			want: Choice{"apt", ReasonFallback},
		},
		{
			name:      "any available prefers vendor",
			available: []string{"snap", "rustup"},
			tool:      "rust-analyzer", language: "rust",
			want: Choice{"rustup", ReasonAvailable},
		},
		{
			name:      "unknown language uses any available",
			available: []string{"snap"},
			tool:      "hx", language: "zig",
			want: Choice{"snap", ReasonAvailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(registryWith(tt.available...), cfg, tt.mode)
			got, err := p.Select(context.Background(), tt.tool, tt.language)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelect_NoManager(t *testing.T) {
	p := New(registryWith(), nil, environment.Workstation)
	_, err := p.Select(context.Background(), "ruff", "python")
	if !errors.Is(err, ErrNoPackageManager) {
		t.Fatalf("expected ErrNoPackageManager, got %v", err)
	}
	var nerr *NoPackageManagerError
	if !errors.As(err, &nerr) || nerr.Tool != "ruff" || nerr.Language != "python" {
		t.Errorf("unexpected error value: %#v", err)
	}
}

func TestSelect_LanguageRestrictsAnyAvailable(t *testing.T) {
	// cargo only supports rust; a python tool must not land on it.
	p := New(registryWith("cargo"), nil, environment.Workstation)
	if c, err := p.Select(context.Background(), "ruff", "python"); err == nil {
		t.Errorf("expected no manager, got %v", c)
	}
}

func TestDefaultHierarchy(t *testing.T) {
	reg := pkgmgr.NewRegistry(command.NewFakeRunner())

	got := New(reg, nil, environment.Server).DefaultHierarchy("")
	want := []string{"brew", "apt", "dnf", "pacman", "github"}
	if len(got) != len(want) {
		t.Fatalf("DefaultHierarchy = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DefaultHierarchy = %v, want %v", got, want)
		}
	}

	// The shared table must not be reordered.
	if DefaultHierarchies[""][0] != "github" {
		t.Error("DefaultHierarchies was mutated")
	}

	if got := New(reg, nil, environment.Workstation).DefaultHierarchy("python"); got[0] != "uv" {
		t.Errorf("python hierarchy = %v", got)
	}
}
