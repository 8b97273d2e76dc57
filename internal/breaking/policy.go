// Package breaking gates upgrades that cross a major version boundary.
package breaking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blackwell-systems/toolkeeper/internal/version"
)

// Mode decides what happens to a breaking upgrade.
type Mode string

const (
	// Accept always proceeds.
	Accept Mode = "accept"
	// Warn proceeds only after explicit interactive confirmation.
	Warn Mode = "warn"
	// Reject blocks the upgrade before anything is changed.
	Reject Mode = "reject"
)

// ParseMode converts a config value into a Mode. An empty string means Warn.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Warn:
		return Warn, nil
	case Accept:
		return Accept, nil
	case Reject:
		return Reject, nil
	default:
		return "", fmt.Errorf("invalid breaking_changes value %q: must be one of: accept, warn, reject", s)
	}
}

// ErrBlocked is returned when policy forbids a breaking upgrade.
var ErrBlocked = errors.New("breaking change blocked by policy")

// ErrDeclined is returned when the user (or a non-interactive session)
// did not confirm a breaking upgrade.
var ErrDeclined = errors.New("breaking change not confirmed")

// IsMajorUpgrade reports whether to has a higher major version than from.
// Versions that cannot be parsed are never considered breaking.
func IsMajorUpgrade(from, to string) bool {
	fm, ok := version.Major(from)
	if !ok {
		return false
	}
	tm, ok := version.Major(to)
	if !ok {
		return false
	}
	return tm > fm
}

// Candidate is one pending upgrade.
type Candidate struct {
	Tool string
	From string
	To   string
}

// Breaking reports whether the candidate crosses a major version.
func (c Candidate) Breaking() bool {
	return IsMajorUpgrade(c.From, c.To)
}

// Blocked is a candidate refused by the policy, with the reason.
type Blocked struct {
	Candidate
	Reason string
	Err    error
}

// Policy applies a Mode, asking Confirmer when the mode is Warn.
type Policy struct {
	Mode      Mode
	Confirmer Confirmer
}

// New creates a Policy. A nil confirmer declines every prompt.
func New(mode Mode, confirmer Confirmer) *Policy {
	if confirmer == nil {
		confirmer = Decline{}
	}
	return &Policy{Mode: mode, Confirmer: confirmer}
}

// Check evaluates a single upgrade. It returns nil if the upgrade may
// proceed, or an error wrapping ErrBlocked or ErrDeclined.
func (p *Policy) Check(ctx context.Context, c Candidate) error {
	if !c.Breaking() {
		return nil
	}
	switch p.Mode {
	case Accept:
		return nil
	case Reject:
		return fmt.Errorf("%w: %s %s -> %s is a major version upgrade", ErrBlocked, c.Tool, c.From, c.To)
	default:
		prompt := fmt.Sprintf("%s %s -> %s is a major version upgrade and may contain breaking changes. Continue?", c.Tool, c.From, c.To)
		if p.Confirmer.Confirm(ctx, prompt) {
			return nil
		}
		return fmt.Errorf("%w: %s %s -> %s", ErrDeclined, c.Tool, c.From, c.To)
	}
}

// Partition applies the policy to a whole bulk-upgrade set before anything
// runs. Under Warn a single confirmation covers every breaking candidate.
// Order within allowed and blocked follows the input order.
func (p *Policy) Partition(ctx context.Context, candidates []Candidate) (allowed []Candidate, blocked []Blocked) {
	var breaking []Candidate
	for _, c := range candidates {
		if c.Breaking() {
			breaking = append(breaking, c)
		}
	}

	approved := true
	if len(breaking) > 0 {
		switch p.Mode {
		case Accept:
		case Reject:
			approved = false
		default:
			approved = p.Confirmer.Confirm(ctx, bulkPrompt(breaking))
		}
	}

	for _, c := range candidates {
		if !c.Breaking() || approved {
			allowed = append(allowed, c)
			continue
		}
		b := Blocked{Candidate: c}
		if p.Mode == Reject {
			b.Err = ErrBlocked
			b.Reason = fmt.Sprintf("major version upgrade %s -> %s rejected by breaking_changes=reject", c.From, c.To)
		} else {
			b.Err = ErrDeclined
			b.Reason = fmt.Sprintf("major version upgrade %s -> %s not confirmed", c.From, c.To)
		}
		blocked = append(blocked, b)
	}

	return allowed, blocked
}

func bulkPrompt(breaking []Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d upgrade(s) cross a major version and may contain breaking changes:\n", len(breaking))
	for _, c := range breaking {
		fmt.Fprintf(&sb, "  %s %s -> %s\n", c.Tool, c.From, c.To)
	}
	sb.WriteString("Continue with all of them?")
	return sb.String()
}
