// Package pkgmgr describes the package managers toolkeeper can drive: how to
// check them, how to build their install/upgrade/uninstall command lines and
// how to tell which of them installed a given binary.
package pkgmgr

import "fmt"

// Category groups managers by who owns the installed files.
type Category string

const (
	// CategoryVendor is a language-specific tool manager (uv, cargo, npm).
	CategoryVendor Category = "vendor"
	// CategoryGitHub installs release binaries straight from GitHub.
	CategoryGitHub Category = "github"
	// CategorySystem is an OS package manager (apt, dnf, brew).
	CategorySystem Category = "system"
)

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryVendor, CategoryGitHub, CategorySystem:
		return Category(s), nil
	default:
		return "", fmt.Errorf("invalid category %q: must be one of: vendor, github, system", s)
	}
}

// CommandKind selects which command template to render.
type CommandKind int

const (
	KindInstall CommandKind = iota
	KindUpgrade
	KindUninstall
)

func (k CommandKind) String() string {
	switch k {
	case KindInstall:
		return "install"
	case KindUpgrade:
		return "upgrade"
	case KindUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Unknown is the method reported when no manager claims a binary.
const Unknown = "unknown"

// Manager is one entry of the registry.
//
// Templates are argv slices; the placeholders {package}, {version} and
// {home} are substituted when a command is built. A nil template means the
// manager cannot perform that operation non-interactively.
type Manager struct {
	Name      string
	Category  Category
	Languages []string // empty means the manager can install anything

	CheckCommand []string

	Install          []string
	InstallPinned    []string
	Upgrade          []string
	UpgradePinned    []string
	UninstallCommand []string

	// Privileged managers need root; their commands are run through sudo
	// and their installs are never destructively rolled back.
	Privileged bool
}

// Supports reports whether m can install tools for language. An empty
// language matches every manager.
func (m *Manager) Supports(language string) bool {
	if language == "" || len(m.Languages) == 0 {
		return true
	}
	for _, l := range m.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// IsSystem reports whether m is an OS-level package manager.
func (m *Manager) IsSystem() bool {
	return m.Category == CategorySystem
}
