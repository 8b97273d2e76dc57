// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Options select the handler.
type Options struct {
	Verbose bool
	// JSON switches from the text handler to the JSON handler.
	JSON bool
	// Quiet raises the level to errors only.
	Quiet bool
}

// Level returns the level implied by opts.
func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New builds a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: opts.Level()}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Setup builds a logger, installs it as the default and returns it.
func Setup(w io.Writer, opts Options) *slog.Logger {
	logger := New(w, opts)
	slog.SetDefault(logger)
	return logger
}

// ParseFormat reports whether format selects JSON output.
func ParseFormat(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "json")
}
