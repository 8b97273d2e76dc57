// Package command runs external programs (package managers, availability checks,
// rollback scripts) behind a small interface so the orchestration code can
// be exercised without touching the host.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result captures the outcome of one subprocess invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// String renders the argv the way a user would type it.
func (r Result) String() string {
	return strings.Join(r.Args, " ")
}

// Runner executes a command and returns its captured output.
//
// A non-nil error means the process could not be started or was abandoned
// (context cancelled); a process that ran and exited non-zero is reported
// through Result.ExitCode with a nil error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the host with os/exec. A cancelled context
// makes Run return immediately; the child keeps running and is reaped in
// the background. Package managers are never killed mid-transaction.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	res := Result{Args: append([]string{name}, args...), ExitCode: -1}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%s not started: %w", name, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// The buffers still belong to the running child; no output is
		// returned for an abandoned process.
		res.Duration = time.Since(start)
		return res, fmt.Errorf("%s abandoned: %w", name, ctx.Err())
	}

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run %s: %w", name, err)
}
