package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		opts Options
		want slog.Level
	}{
		{Options{}, slog.LevelWarn},
		{Options{Verbose: true}, slog.LevelDebug},
		{Options{Quiet: true}, slog.LevelError},
		{Options{Verbose: true, Quiet: true}, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := tt.opts.Level(); got != tt.want {
			t.Errorf("%+v.Level() = %v, want %v", tt.opts, got, tt.want)
		}
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{})

	logger.Info("hidden")
	logger.Warn("retrying", "tool", "rg")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at the default level: %s", out)
	}
	if !strings.Contains(out, "msg=retrying") || !strings.Contains(out, "tool=rg") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{JSON: true, Verbose: true})

	logger.Debug("lookup", "manager", "cargo")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "lookup" || rec["manager"] != "cargo" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestParseFormat(t *testing.T) {
	if !ParseFormat("JSON") || ParseFormat("text") || ParseFormat("") {
		t.Error("ParseFormat mismatch")
	}
}
