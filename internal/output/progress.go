package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/toolkeeper/internal/progress"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar follows a progress.Tracker and draws how many tools have
// finished.
// Example: [=========>          ]  45% ruff: success
//
// On a non-terminal writer each finished tool is printed on its own line
// instead, so logs and CI output stay readable.
type ProgressBar struct {
	total       int
	current     int
	description string
	width       int
	done        map[string]bool
	mu          sync.Mutex
	writer      io.Writer
}

// NewProgress creates a progress bar for total tools.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		description: description,
		width:       40,
		done:        make(map[string]bool),
		writer:      os.Stdout,
	}
}

// SetWidth sets the width of the progress bar in characters.
func (p *ProgressBar) SetWidth(width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
}

// SetWriter sets the output writer (useful for testing).
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Observe is a progress.Observer. Each tool counts once, the first time it
// reaches a terminal status.
func (p *ProgressBar) Observe(e progress.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !e.Status.Done() {
		if e.Status == progress.InProgress && writerIsTTY(p.writer) {
			p.description = e.Tool + ": " + string(e.Status)
			p.render()
		}
		return
	}
	if p.done[e.Tool] {
		return
	}
	p.done[e.Tool] = true

	p.current++
	if p.current > p.total {
		p.total = p.current
	}
	p.description = e.Tool + ": " + string(e.Status)

	if writerIsTTY(p.writer) {
		p.render()
		return
	}
	line := fmt.Sprintf("[%d/%d] %s", p.current, p.total, p.description)
	if e.Status == progress.Failed && e.Message != "" {
		line += " (" + firstLine(e.Message) + ")"
	}
	fmt.Fprintln(p.writer, line)
}

// Finish completes the bar and moves to a new line. It is a no-op on
// non-terminal writers.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !writerIsTTY(p.writer) {
		return
	}
	p.render()
	fmt.Fprintln(p.writer)
}

// render draws the progress bar (must be called with lock held).
func (p *ProgressBar) render() {
	fmt.Fprintf(p.writer, "\r%s %3d%% %s\033[K", p.bar(), p.percent(), p.description)
}

func (p *ProgressBar) percent() int {
	if p.total <= 0 {
		return 0
	}
	return (p.current * 100) / p.total
}

func (p *ProgressBar) bar() string {
	filled := 0
	if p.total > 0 {
		filled = (p.current * p.width) / p.total
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			sb.WriteString("=")
		case i == filled-1:
			sb.WriteString(">")
		default:
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Spinner displays an animated spinner while a single indeterminate step
// runs, such as scanning PATH.
// Example: |  Scanning PATH for rg...
type Spinner struct {
	message string
	running bool
	chars   []string
	mu      sync.Mutex
	writer  io.Writer
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSpinner creates a spinner writing to stderr, so it never mixes with
// JSON on stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
		done:    make(chan struct{}),
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. On a non-TTY writer nothing is drawn.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !writerIsTTY(s.writer) {
		return
	}
	s.running = true
	s.ticker = time.NewTicker(100 * time.Millisecond)

	go func() {
		idx := 0
		for {
			select {
			case <-s.ticker.C:
				s.mu.Lock()
				if !s.running {
					s.mu.Unlock()
					return
				}
				fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.message)
				idx = (idx + 1) % len(s.chars)
				s.mu.Unlock()

			case <-s.done:
				return
			}
		}
	}()
}

// UpdateMessage updates the spinner message while it's running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.done)
	fmt.Fprint(s.writer, "\r\033[K")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
