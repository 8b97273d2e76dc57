package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExecRunner_Success(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), "sh", "-c", "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Errorf("expected success, got exit code %d", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("expected stdout %q, got %q", "hello\n", res.Stdout)
	}
	if res.Stderr != "oops\n" {
		t.Errorf("expected stderr %q, got %q", "oops\n", res.Stderr)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), "sh", "-c", "exit 75")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got: %v", err)
	}
	if res.ExitCode != 75 {
		t.Errorf("expected exit code 75, got %d", res.ExitCode)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), "toolkeeper-definitely-not-a-binary")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestExecRunner_CancelAbandonsChild(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewExecRunner().Run(ctx, "sh", "-c", "sleep 1; touch '"+marker+"'")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Run waited %v for the child instead of returning on cancel", elapsed)
	}

	// The child must run to completion after Run has returned.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("child did not finish after cancellation; it was killed")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestExecRunner_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	marker := filepath.Join(t.TempDir(), "started")
	_, err := NewExecRunner().Run(ctx, "sh", "-c", "touch '"+marker+"'")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("expected a cancelled context to prevent the start")
	}
}

func TestFakeRunner_LongestPrefixAndQueue(t *testing.T) {
	f := NewFakeRunner()
	f.On("cargo", Response{ExitCode: 1})
	f.On("cargo install", Response{ExitCode: 2}, Response{ExitCode: 0, Stdout: "ok"})

	ctx := context.Background()

	res, _ := f.Run(ctx, "cargo", "install", "ripgrep")
	if res.ExitCode != 2 {
		t.Errorf("first call: expected exit 2, got %d", res.ExitCode)
	}
	res, _ = f.Run(ctx, "cargo", "install", "ripgrep")
	if res.ExitCode != 0 || res.Stdout != "ok" {
		t.Errorf("second call: expected scripted success, got %+v", res)
	}
	res, _ = f.Run(ctx, "cargo", "install", "ripgrep")
	if res.ExitCode != 0 {
		t.Errorf("queue should repeat last response, got exit %d", res.ExitCode)
	}
	res, _ = f.Run(ctx, "cargo", "uninstall", "ripgrep")
	if res.ExitCode != 1 {
		t.Errorf("shorter prefix should match, got exit %d", res.ExitCode)
	}
	res, _ = f.Run(ctx, "pipx", "list")
	if res.ExitCode != 127 {
		t.Errorf("unknown command should use default, got exit %d", res.ExitCode)
	}

	if got := f.CallCount("cargo install"); got != 3 {
		t.Errorf("expected 3 cargo install calls, got %d", got)
	}
}

func TestFakeRunner_CancelledContext(t *testing.T) {
	f := NewFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Run(ctx, "true")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
