// Package retry decides whether a failed package-manager step is worth
// repeating and how long to wait between attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"time"
)

// Defaults used by New.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second

	// MinDelay is the floor applied after jitter.
	MinDelay = 100 * time.Millisecond
	// Jitter is the relative spread applied to each delay.
	Jitter = 0.2
)

var (
	networkPattern = regexp.MustCompile(`(?i)connection (refused|reset|timed out)|\btimed? ?out\b|temporary failure in name resolution|could not resolve host|network is unreachable|no route to host|tls handshake timeout|name or service not known`)
	lockPattern    = regexp.MustCompile(`(?i)could not get lock|unable to acquire the dpkg frontend lock|dpkg frontend lock|waiting for cache lock|blocking waiting for file lock|another (instance|process)|resource temporarily unavailable|database is locked|is locked by another`)
)

// retryableExitCodes are exit statuses that signal a temporary condition:
// EX_TEMPFAIL, ECONNREFUSED as an exit code, and git's generic network failure.
var retryableExitCodes = map[int]bool{
	75:  true,
	111: true,
	128: true,
}

// IsRetryable classifies a failed step as transient.
func IsRetryable(exitCode int, stderr string) bool {
	if retryableExitCodes[exitCode] {
		return true
	}
	return networkPattern.MatchString(stderr) || lockPattern.MatchString(stderr)
}

// Outcome is what an attempt reports back to Do.
type Outcome struct {
	Success  bool
	ExitCode int
	Stderr   string
}

// Policy configures retries. MaxRetries is the total number of attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Sleep waits for d or until ctx is done. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a float in [0,1). Replaced in tests.
	Rand func() float64
}

// New returns a Policy with default settings.
func New() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// BaseBackoff returns the delay before the retry following attempt
// (0-based), without jitter: min(BaseDelay * 2^attempt, MaxDelay).
func (p *Policy) BaseBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// Delay returns BaseBackoff(attempt) with ±20% jitter, never below MinDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	base := float64(p.BaseBackoff(attempt))
	d := time.Duration(base * (1 + Jitter*(2*r()-1)))
	if d < MinDelay {
		d = MinDelay
	}
	return d
}

// Do runs attempt until it succeeds, fails with a non-retryable outcome, or
// MaxRetries attempts have been made. attempt receives the 1-based attempt
// number. Do returns the last outcome and the attempt number it settled on.
//
// If ctx is cancelled while waiting, Do stops and returns the last outcome
// together with ctx's error.
func (p *Policy) Do(ctx context.Context, attempt func(n int) Outcome) (Outcome, int, error) {
	max := p.MaxRetries
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last Outcome
	for n := 1; n <= max; n++ {
		last = attempt(n)
		if last.Success || !IsRetryable(last.ExitCode, last.Stderr) || n == max {
			return last, n, nil
		}
		if err := sleep(ctx, p.Delay(n-1)); err != nil {
			return last, n, err
		}
	}
	return last, max, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
