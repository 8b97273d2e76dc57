package pkgmgr

import (
	"path/filepath"
	"strings"
)

// Preference tiers for duplicate installations; lower is preferred.
const (
	TierVendorScoped = 1
	TierUserScoped   = 2
	TierHomebrew     = 3
	TierSystem       = 4
	TierUnknown      = 5
)

var methodTiers = map[string]int{
	"uv":     TierVendorScoped,
	"pipx":   TierVendorScoped,
	"rustup": TierVendorScoped,
	"nvm":    TierVendorScoped,
	"pyenv":  TierVendorScoped,
	"rbenv":  TierVendorScoped,

	"cargo":  TierUserScoped,
	"pip":    TierUserScoped,
	"npm":    TierUserScoped,
	"gem":    TierUserScoped,
	"go":     TierUserScoped,
	"github": TierUserScoped,

	"brew": TierHomebrew,

	"apt":    TierSystem,
	"dnf":    TierSystem,
	"yum":    TierSystem,
	"pacman": TierSystem,
	"zypper": TierSystem,
	"snap":   TierSystem,
	"rpm":    TierSystem,
}

// Tier returns the preference tier of an installation made by method at
// path. Any path under ~/.cargo or ~/.local counts as user-scoped even when
// the method could not be determined.
func Tier(method, path, home string) int {
	if t, ok := methodTiers[method]; ok && t <= TierUserScoped {
		return t
	}
	if underUserDir(path, home) {
		return TierUserScoped
	}
	if t, ok := methodTiers[method]; ok {
		return t
	}
	return TierUnknown
}

func underUserDir(path, home string) bool {
	p := filepath.ToSlash(path)
	if home != "" {
		h := filepath.ToSlash(home)
		for _, dir := range []string{".cargo", ".local"} {
			if strings.HasPrefix(p, h+"/"+dir+"/") {
				return true
			}
		}
		return false
	}
	return strings.Contains(p, "/.cargo/") || strings.Contains(p, "/.local/")
}
