package catalog

import "fmt"

// SourceKind names where upstream releases of a tool are published.
type SourceKind string

const (
	SourceGitHub SourceKind = "github"
	SourcePyPI   SourceKind = "pypi"
	SourceNPM    SourceKind = "npm"
	SourceCrates SourceKind = "crates"
	SourceGNU    SourceKind = "gnu"
	SourceNone   SourceKind = "none"
)

// Source is an upstream release feed. The set of implementations is closed:
// GitHubSource, PyPISource, NPMSource, CratesSource, GNUSource and NoSource.
type Source interface {
	Kind() SourceKind
	isSource()
}

// GitHubSource tracks releases of owner/repo.
type GitHubSource struct {
	Repo string
}

// PyPISource tracks a PyPI project.
type PyPISource struct {
	Package string
}

// NPMSource tracks an npm package.
type NPMSource struct {
	Package string
}

// CratesSource tracks a crates.io crate.
type CratesSource struct {
	Crate string
}

// GNUSource tracks a project on ftp.gnu.org.
type GNUSource struct {
	Project string
}

// NoSource means upstream is not tracked.
type NoSource struct{}

func (GitHubSource) Kind() SourceKind { return SourceGitHub }
func (PyPISource) Kind() SourceKind   { return SourcePyPI }
func (NPMSource) Kind() SourceKind    { return SourceNPM }
func (CratesSource) Kind() SourceKind { return SourceCrates }
func (GNUSource) Kind() SourceKind    { return SourceGNU }
func (NoSource) Kind() SourceKind     { return SourceNone }

func (GitHubSource) isSource() {}
func (PyPISource) isSource()   {}
func (NPMSource) isSource()    {}
func (CratesSource) isSource() {}
func (GNUSource) isSource()    {}
func (NoSource) isSource()     {}

// rawSource is the YAML shape of a source block.
type rawSource struct {
	Kind    string `yaml:"kind"`
	Repo    string `yaml:"repo,omitempty"`
	Package string `yaml:"package,omitempty"`
	Crate   string `yaml:"crate,omitempty"`
	Project string `yaml:"project,omitempty"`
}

// decode validates raw and builds the matching Source. pkg is the entry's
// package name, used when the source omits its own identifier.
func (raw rawSource) decode(pkg string) (Source, error) {
	or := func(v string) string {
		if v != "" {
			return v
		}
		return pkg
	}

	switch SourceKind(raw.Kind) {
	case SourceGitHub:
		if raw.Repo == "" {
			return nil, fmt.Errorf("source kind 'github' requires 'repo'")
		}
		return GitHubSource{Repo: raw.Repo}, nil
	case SourcePyPI:
		return PyPISource{Package: or(raw.Package)}, nil
	case SourceNPM:
		return NPMSource{Package: or(raw.Package)}, nil
	case SourceCrates:
		return CratesSource{Crate: or(raw.Crate)}, nil
	case SourceGNU:
		return GNUSource{Project: or(raw.Project)}, nil
	case SourceNone, "":
		return NoSource{}, nil
	default:
		return nil, fmt.Errorf("unknown source kind '%s': must be one of: github, pypi, npm, crates, gnu, none", raw.Kind)
	}
}

// Describe returns a human-readable location for src.
func Describe(src Source) string {
	switch s := src.(type) {
	case GitHubSource:
		return "github.com/" + s.Repo
	case PyPISource:
		return "pypi.org/project/" + s.Package
	case NPMSource:
		return "npmjs.com/package/" + s.Package
	case CratesSource:
		return "crates.io/crates/" + s.Crate
	case GNUSource:
		return "ftp.gnu.org/gnu/" + s.Project
	case NoSource, nil:
		return "untracked"
	default:
		return string(src.Kind())
	}
}
