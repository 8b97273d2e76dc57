package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		stderr   string
		want     bool
	}{
		{"connection refused", 1, "error: connection refused", true},
		{"timeout", 1, "Read timed out.", true},
		{"dns", 1, "Temporary failure in name resolution", true},
		{"apt lock", 100, "E: Could not get lock /var/lib/dpkg/lock-frontend", true},
		{"cargo lock", 101, "Blocking waiting for file lock on package cache", true},
		{"exit 75", 75, "", true},
		{"exit 111", 111, "", true},
		{"exit 128", 128, "fatal: unable to access", true},
		{"not found", 1, "error: could not find `nope` in registry", false},
		{"permission denied", 1, "Permission denied", false},
		{"exit 2", 2, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.exitCode, tt.stderr); got != tt.want {
				t.Errorf("IsRetryable(%d, %q) = %v, want %v", tt.exitCode, tt.stderr, got, tt.want)
			}
		})
	}
}

func TestDo_RetryBound(t *testing.T) {
	p := New()
	p.Sleep = noSleep

	calls := 0
	out, n, err := p.Do(context.Background(), func(int) Outcome {
		calls++
		return Outcome{ExitCode: 1, Stderr: "connection refused"}
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != p.MaxRetries {
		t.Errorf("expected exactly %d attempts, got %d", p.MaxRetries, calls)
	}
	if n != p.MaxRetries {
		t.Errorf("expected settled attempt %d, got %d", p.MaxRetries, n)
	}
	if out.Success {
		t.Error("expected failure outcome")
	}
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	p := New()
	p.Sleep = noSleep

	out, n, err := p.Do(context.Background(), func(attempt int) Outcome {
		if attempt < 3 {
			return Outcome{ExitCode: 1, Stderr: "connection refused"}
		}
		return Outcome{Success: true}
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Error("expected success")
	}
	if n != 3 {
		t.Errorf("expected attempt number 3, got %d", n)
	}
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	p := New()
	slept := false
	p.Sleep = func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	calls := 0
	_, n, _ := p.Do(context.Background(), func(int) Outcome {
		calls++
		return Outcome{ExitCode: 1, Stderr: "package not found"}
	})

	if calls != 1 || n != 1 {
		t.Errorf("expected a single attempt, got calls=%d n=%d", calls, n)
	}
	if slept {
		t.Error("should not sleep after a non-retryable failure")
	}
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	p := New()
	p.BaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, n, err := p.Do(ctx, func(int) Outcome {
		calls++
		cancel()
		return Outcome{ExitCode: 75}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || n != 1 {
		t.Errorf("expected to stop after first attempt, got calls=%d n=%d", calls, n)
	}
}

func TestBaseBackoff_Monotonic(t *testing.T) {
	p := New()
	p.BaseDelay = 500 * time.Millisecond
	p.MaxDelay = 10 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.BaseBackoff(attempt)
		if d < prev {
			t.Errorf("backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("backoff %v exceeds max %v", d, p.MaxDelay)
		}
		prev = d
	}
	if got := p.BaseBackoff(2); got != 2*time.Second {
		t.Errorf("expected 2s at attempt 2, got %v", got)
	}
	if got := p.BaseBackoff(20); got != p.MaxDelay {
		t.Errorf("expected cap at %v, got %v", p.MaxDelay, got)
	}
}

func TestDelay_JitterAndFloor(t *testing.T) {
	p := New()
	p.BaseDelay = time.Second

	p.Rand = func() float64 { return 0 }
	if got := p.Delay(0); got != 800*time.Millisecond {
		t.Errorf("expected -20%% jitter to give 800ms, got %v", got)
	}

	p.Rand = func() float64 { return 0.999999 }
	if got := p.Delay(0); got < 1199*time.Millisecond || got > 1200*time.Millisecond {
		t.Errorf("expected about +20%% jitter, got %v", got)
	}

	p.BaseDelay = 10 * time.Millisecond
	p.Rand = func() float64 { return 0 }
	if got := p.Delay(0); got != MinDelay {
		t.Errorf("expected floor %v, got %v", MinDelay, got)
	}

	p.BaseDelay = time.Second
	p.Rand = nil
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("delay %v outside ±20%% of 2s", d)
		}
	}
}
