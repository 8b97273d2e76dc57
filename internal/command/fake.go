package command

import (
	"context"
	"strings"
	"sync"
)

// Response is a scripted reply for FakeRunner.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// FakeRunner is an in-memory Runner for tests. Responses are matched by
// command-line prefix; the longest matching prefix wins. A prefix with a
// queue of responses replays them in order and then repeats the last one.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []string
	// Default is returned when no prefix matches.
	Default Response
	// Hook, when set, runs before a scripted response is chosen and may
	// override it by returning handled=true.
	Hook func(line string) (resp Response, handled bool)
}

// NewFakeRunner returns a FakeRunner where unknown commands exit 127.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string][]Response),
		Default:   Response{ExitCode: 127, Stderr: "command not found"},
	}
}

// On scripts one or more responses for commands starting with prefix.
func (f *FakeRunner) On(prefix string, responses ...Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = append(f.responses[prefix], responses...)
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	argv := append([]string{name}, args...)
	line := strings.Join(argv, " ")

	f.mu.Lock()
	f.calls = append(f.calls, line)
	hook := f.Hook
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{Args: argv, ExitCode: -1}, err
	}

	if hook != nil {
		if resp, ok := hook(line); ok {
			return Result{Args: argv, ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}, resp.Err
		}
	}

	f.mu.Lock()
	resp := f.next(line)
	f.mu.Unlock()

	return Result{Args: argv, ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}, resp.Err
}

// next pops the scripted response for line (must be called with lock held).
func (f *FakeRunner) next(line string) Response {
	best := ""
	found := false
	for prefix := range f.responses {
		if strings.HasPrefix(line, prefix) && (!found || len(prefix) > len(best)) {
			best = prefix
			found = true
		}
	}
	if !found {
		return f.Default
	}

	queue := f.responses[best]
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[best] = queue[1:]
	}
	return resp
}

// Calls returns every command line run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many command lines started with prefix.
func (f *FakeRunner) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
