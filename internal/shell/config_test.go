package shell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		shell string
		want  Kind
	}{
		{"/bin/zsh", Zsh},
		{"/usr/local/bin/bash", Bash},
		{"/opt/homebrew/bin/fish", Fish},
		{"/bin/dash", POSIX},
		{"", POSIX},
	}
	for _, tt := range tests {
		if got := Detect(tt.shell); got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.shell, got, tt.want)
		}
	}
}

func TestPrependLine(t *testing.T) {
	if got := PrependLine(Zsh, "/home/u/.cargo/bin"); got != `export PATH="/home/u/.cargo/bin":$PATH` {
		t.Errorf("zsh line = %s", got)
	}
	if got := PrependLine(Fish, "/home/u/.cargo/bin"); got != "fish_add_path --move --prepend /home/u/.cargo/bin" {
		t.Errorf("fish line = %s", got)
	}
}

func TestGuidance(t *testing.T) {
	t.Setenv("HOME", "/home/u")

	g := Guidance(Bash, "rg", "/home/u/.cargo/bin/rg", "/usr/bin/rg")

	for _, want := range []string{
		"rg currently resolves to /usr/bin/rg",
		"/home/u/.bash_profile",
		`export PATH="/home/u/.cargo/bin":$PATH`,
		"hash -r",
	} {
		if !strings.Contains(g, want) {
			t.Errorf("guidance missing %q:\n%s", want, g)
		}
	}
}

// TestEnsurePathFirst_AlreadyFirst verifies that nothing is written when
// dir already leads PATH.
func TestEnsurePathFirst_AlreadyFirst(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("PATH", tmpDir+string(filepath.ListSeparator)+"/usr/bin")

	added, configFile, err := EnsurePathFirst(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added || configFile != "" {
		t.Errorf("expected no change, got added=%v configFile=%q", added, configFile)
	}
}

// TestEnsurePathFirst_AppendsToProfile verifies the prepend line is
// appended without overwriting existing content, and only once.
func TestEnsurePathFirst_AppendsToProfile(t *testing.T) {
	tmpDir := t.TempDir()
	binDir := filepath.Join(tmpDir, ".cargo", "bin")

	t.Setenv("HOME", tmpDir)
	t.Setenv("SHELL", "/bin/sh")
	t.Setenv("PATH", "/usr/bin:"+binDir)

	profilePath := filepath.Join(tmpDir, ".profile")
	existingContent := "# existing content\n"
	if err := os.WriteFile(profilePath, []byte(existingContent), 0644); err != nil {
		t.Fatalf("failed to pre-create .profile: %v", err)
	}

	added, configFile, err := EnsurePathFirst(binDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added || configFile != profilePath {
		t.Fatalf("expected added to %s, got added=%v configFile=%q", profilePath, added, configFile)
	}

	data, _ := os.ReadFile(profilePath)
	content := string(data)
	if !strings.HasPrefix(content, existingContent) {
		t.Errorf("existing content was overwritten; got:\n%s", content)
	}
	if !strings.Contains(content, markerPrefix+binDir) {
		t.Errorf("expected marker in .profile; got:\n%s", content)
	}

	added, _, err = EnsurePathFirst(binDir)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if added {
		t.Errorf("second call should be idempotent")
	}
}

// TestEnsurePathFirst_Fish verifies fish gets its own conf.d file.
func TestEnsurePathFirst_Fish(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("SHELL", "/usr/bin/fish")
	t.Setenv("PATH", "/usr/bin")

	_, configFile, err := EnsurePathFirst("/opt/tools/bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(tmpDir, ".config", "fish", "conf.d", "toolkeeper.fish")
	if configFile != want {
		t.Errorf("configFile = %q, want %q", configFile, want)
	}
	data, _ := os.ReadFile(want)
	if !strings.Contains(string(data), "fish_add_path --move --prepend /opt/tools/bin") {
		t.Errorf("unexpected fish config:\n%s", data)
	}
}
