package reconcile

import "strings"

// protected lists binaries the system itself depends on. Removing any copy
// of them can leave a machine unbootable or unreachable, so aggressive
// reconciliation refuses to touch them at all.
var protected = map[string]bool{
	// Interpreters
	"python":  true,
	"python2": true,
	"python3": true,
	"perl":    true,

	// Shells
	"bash": true,
	"sh":   true,
	"zsh":  true,
	"dash": true,
	"fish": true,

	// Privilege and login
	"sudo":   true,
	"su":     true,
	"login":  true,
	"passwd": true,

	// Core utilities
	"coreutils": true,
	"rm":        true,
	"cp":        true,
	"mv":        true,
	"ls":        true,
	"ln":        true,
	"chmod":     true,
	"chown":     true,
	"env":       true,
	"find":      true,
	"grep":      true,
	"sed":       true,
	"awk":       true,
	"tar":       true,
	"gzip":      true,

	// Remote access and fetching
	"ssh":     true,
	"scp":     true,
	"git":     true,
	"curl":    true,
	"wget":    true,
	"openssl": true,

	// Package managers and init
	"apt":       true,
	"apt-get":   true,
	"dpkg":      true,
	"rpm":       true,
	"dnf":       true,
	"yum":       true,
	"systemctl": true,
	"mount":     true,
}

// IsProtected reports whether tool is on the safelist.
func IsProtected(tool string) bool {
	if protected[tool] {
		return true
	}
	// Versioned interpreters such as python3.12.
	return strings.HasPrefix(tool, "python3.") || strings.HasPrefix(tool, "python@")
}
