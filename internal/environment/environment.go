// Package environment guesses whether toolkeeper is running in CI, on a
// server or on a developer workstation.
package environment

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Mode is the kind of machine toolkeeper is running on.
type Mode string

const (
	CI          Mode = "ci"
	Server      Mode = "server"
	Workstation Mode = "workstation"
)

// OverrideVar forces a mode when set.
const OverrideVar = "TOOLKEEPER_ENV"

// ServerUptime is the uptime above which a headless machine is assumed to
// be a server.
const ServerUptime = 7 * 24 * time.Hour

// ciVars are set by common CI providers.
var ciVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
	"CIRCLECI",
	"TRAVIS",
	"TF_BUILD",
	"TEAMCITY_VERSION",
}

// ParseMode converts s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case CI, Server, Workstation:
		return m, nil
	default:
		return "", fmt.Errorf("invalid environment %q: must be one of: ci, server, workstation", s)
	}
}

// Classifier detects the Mode. The zero value inspects the real process
// environment and host.
type Classifier struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Uptime defaults to the host uptime reported by gopsutil.
	Uptime func(ctx context.Context) (time.Duration, error)
	// GOOS defaults to runtime.GOOS.
	GOOS string
}

func (c *Classifier) getenv(key string) string {
	if c.Getenv != nil {
		return c.Getenv(key)
	}
	return os.Getenv(key)
}

func (c *Classifier) uptime(ctx context.Context) (time.Duration, error) {
	if c.Uptime != nil {
		return c.Uptime(ctx)
	}
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// Detect returns the Mode for this machine.
//
// An explicit TOOLKEEPER_ENV wins. Any CI provider variable means CI. A
// Linux machine with no graphical session that is either reached over SSH
// or has been up for more than a week is treated as a server. Everything
// else is a workstation.
func (c *Classifier) Detect(ctx context.Context) Mode {
	if v := c.getenv(OverrideVar); v != "" {
		if m, err := ParseMode(v); err == nil {
			return m
		}
	}

	for _, key := range ciVars {
		if v := c.getenv(key); v != "" && v != "false" && v != "0" {
			return CI
		}
	}

	goos := c.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" {
		return Workstation
	}
	if c.getenv("DISPLAY") != "" || c.getenv("WAYLAND_DISPLAY") != "" {
		return Workstation
	}

	if c.getenv("SSH_CONNECTION") != "" || c.getenv("SSH_TTY") != "" {
		return Server
	}
	if up, err := c.uptime(ctx); err == nil && up >= ServerUptime {
		return Server
	}
	return Workstation
}

// Detect classifies the current machine with a default Classifier.
func Detect(ctx context.Context) Mode {
	var c Classifier
	return c.Detect(ctx)
}
