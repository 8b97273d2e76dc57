// Package shell produces PATH guidance for the user's shell and can write
// the corresponding line to its startup file.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind is a shell family with its own PATH syntax.
type Kind string

const (
	Bash  Kind = "bash"
	Zsh   Kind = "zsh"
	Fish  Kind = "fish"
	POSIX Kind = "sh"
)

// markerPrefix tags lines written by EnsurePathFirst.
const markerPrefix = "# toolkeeper: prefer "

// Detect maps a $SHELL value to a Kind. Anything unrecognised is POSIX.
func Detect(shellPath string) Kind {
	switch filepath.Base(shellPath) {
	case "zsh":
		return Zsh
	case "bash":
		return Bash
	case "fish":
		return Fish
	default:
		return POSIX
	}
}

// Current returns the Kind of the login shell from $SHELL.
func Current() Kind {
	return Detect(os.Getenv("SHELL"))
}

// ConfigFile returns the startup file PATH changes belong in.
func ConfigFile(k Kind, home string) string {
	switch k {
	case Zsh:
		return filepath.Join(home, ".zprofile")
	case Bash:
		return filepath.Join(home, ".bash_profile")
	case Fish:
		return filepath.Join(home, ".config", "fish", "conf.d", "toolkeeper.fish")
	default:
		return filepath.Join(home, ".profile")
	}
}

// PrependLine returns the command that puts dir in front of PATH.
func PrependLine(k Kind, dir string) string {
	if k == Fish {
		return fmt.Sprintf("fish_add_path --move --prepend %s", dir)
	}
	return fmt.Sprintf("export PATH=%q:$PATH", dir)
}

// Guidance explains how to make preferredPath win over activePath.
func Guidance(k Kind, tool, preferredPath, activePath string) string {
	dir := filepath.Dir(preferredPath)
	home, _ := os.UserHomeDir()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s currently resolves to %s, but the preferred installation is %s.\n", tool, activePath, preferredPath)
	fmt.Fprintf(&sb, "Add this line to %s:\n\n", ConfigFile(k, home))
	fmt.Fprintf(&sb, "    %s\n\n", PrependLine(k, dir))
	if k == Fish {
		sb.WriteString("then open a new shell.")
	} else {
		sb.WriteString("then open a new shell or run 'hash -r'.")
	}
	return sb.String()
}

// EnsurePathFirst makes dir the first PATH entry for future shells by
// appending a prepend line to the shell's startup file.
// Returns (added bool, configFile string, err error).
// added=false means dir is already first on PATH or was configured earlier.
func EnsurePathFirst(dir string) (added bool, configFile string, err error) {
	entries := filepath.SplitList(os.Getenv("PATH"))
	if len(entries) > 0 && entries[0] == dir {
		return false, "", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false, "", fmt.Errorf("cannot determine home directory: %w", err)
	}

	k := Current()
	configPath := ConfigFile(k, home)

	// Ensure the parent directory exists (needed for fish conf.d path).
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return false, "", fmt.Errorf("cannot create config directory %s: %w", filepath.Dir(configPath), err)
	}

	marker := markerPrefix + dir
	if existing, readErr := os.ReadFile(configPath); readErr == nil {
		for _, line := range strings.Split(string(existing), "\n") {
			if line == marker {
				return false, configPath, nil
			}
		}
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, "", fmt.Errorf("cannot open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "\n%s\n%s\n", marker, PrependLine(k, dir)); err != nil {
		return false, "", fmt.Errorf("cannot write to config file %s: %w", configPath, err)
	}

	return true, configPath, nil
}
