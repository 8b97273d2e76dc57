// Package version normalizes the loose version strings printed by developer
// tools and package managers into semantic versions.
package version

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Latest is the target version meaning "whatever the manager considers newest".
const Latest = "latest"

var (
	leadingVersion = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(.*)$`)
	embedded       = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?`)
)

// Canonical converts v into a canonical semver string ("v1.2.3" or
// "v1.2.3-rc.1"). Returns "" if v cannot be interpreted as a version.
// Extra components ("1.2.3.4") and build suffixes are dropped.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if v == "" {
		return ""
	}

	m := leadingVersion.FindStringSubmatch(v)
	if m == nil {
		return ""
	}

	parts := []string{m[1], "0", "0"}
	if m[2] != "" {
		parts[1] = m[2]
	}
	if m[3] != "" {
		parts[2] = m[3]
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ""
		}
		parts[i] = strconv.Itoa(n)
	}

	out := "v" + strings.Join(parts, ".")
	if rest := m[4]; strings.HasPrefix(rest, "-") {
		pre := rest
		if i := strings.IndexAny(pre, "+ "); i >= 0 {
			pre = pre[:i]
		}
		if semver.IsValid(out + pre) {
			out += pre
		}
	}

	if !semver.IsValid(out) {
		return ""
	}
	return out
}

// Valid reports whether v can be interpreted as a version.
func Valid(v string) bool {
	return Canonical(v) != ""
}

// Major returns the major component of v.
func Major(v string) (int, bool) {
	c := Canonical(v)
	if c == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(semver.Major(c), "v"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Compare returns -1, 0 or +1 comparing a and b. Unparseable versions sort
// before every parseable one and compare equal to each other.
func Compare(a, b string) int {
	return semver.Compare(Canonical(a), Canonical(b))
}

// Equal reports whether a and b denote the same version. Falls back to
// string equality when either side is unparseable.
func Equal(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	if ca == "" || cb == "" {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return semver.Compare(ca, cb) == 0
}

// Extract returns the first version-looking token in text, e.g. from the
// output of "rg --version". Returns "" if none is found.
func Extract(text string) string {
	return embedded.FindString(text)
}
