package breaking

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Decline answers no to everything.
type Decline struct{}

// Confirm implements Confirmer.
func (Decline) Confirm(context.Context, string) bool { return false }

// Approve answers yes to everything (--yes).
type Approve struct{}

// Confirm implements Confirmer.
func (Approve) Confirm(context.Context, string) bool { return true }

// PromptConfirmer reads an answer from a terminal. When the input is not a
// terminal the session is treated as non-interactive and every prompt is
// declined.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
	// Interactive overrides terminal detection when non-nil.
	Interactive *bool
}

// NewPromptConfirmer prompts on stdout and reads stdin.
func NewPromptConfirmer() *PromptConfirmer {
	return &PromptConfirmer{In: os.Stdin, Out: os.Stdout}
}

func (c *PromptConfirmer) interactive() bool {
	if c.Interactive != nil {
		return *c.Interactive
	}
	if f, ok := c.In.(interface{ Fd() uintptr }); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Confirm accepts "y" or "yes".
func (c *PromptConfirmer) Confirm(ctx context.Context, prompt string) bool {
	if !c.interactive() || ctx.Err() != nil {
		return false
	}

	fmt.Fprintf(c.Out, "%s [y/N]: ", prompt)

	answer := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(c.In).ReadString('\n')
		if err != nil && line == "" {
			answer <- ""
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.Out)
		return false
	case line := <-answer:
		response := strings.TrimSpace(strings.ToLower(line))
		return response == "y" || response == "yes"
	}
}
