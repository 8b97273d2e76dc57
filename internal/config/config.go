// Package config loads the user's toolkeeper.yaml: per-tool overrides and
// global preferences.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up inside Dir.
const FileName = "config.yaml"

// Defaults applied to missing preferences.
const (
	DefaultBreakingChanges = "warn"
	DefaultReconciliation  = "parallel"
	DefaultMaxWorkers      = 16
	DefaultTimeoutSeconds  = 600
	DefaultCacheTTLSeconds = 3600
)

// Config is the parsed config file.
type Config struct {
	Tools       map[string]ToolConfig `yaml:"tools,omitempty"`
	Preferences Preferences           `yaml:"preferences"`
}

// ToolConfig overrides how a single tool is managed.
type ToolConfig struct {
	Version  string `yaml:"version,omitempty"`
	Method   string `yaml:"method,omitempty"`
	Fallback string `yaml:"fallback,omitempty"`
}

// Preferences are the global knobs.
type Preferences struct {
	BreakingChanges string              `yaml:"breaking_changes,omitempty"`
	Reconciliation  string              `yaml:"reconciliation,omitempty"`
	MaxWorkers      int                 `yaml:"max_workers,omitempty"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds,omitempty"`
	CacheTTLSeconds int                 `yaml:"cache_ttl_seconds,omitempty"`
	PackageManagers map[string][]string `yaml:"package_managers,omitempty"`
}

// Default returns a config with every preference at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Tools == nil {
		c.Tools = make(map[string]ToolConfig)
	}
	p := &c.Preferences
	if p.BreakingChanges == "" {
		p.BreakingChanges = DefaultBreakingChanges
	}
	if p.Reconciliation == "" {
		p.Reconciliation = DefaultReconciliation
	}
	if p.MaxWorkers == 0 {
		p.MaxWorkers = DefaultMaxWorkers
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if p.CacheTTLSeconds == 0 {
		p.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if p.PackageManagers == nil {
		p.PackageManagers = make(map[string][]string)
	}
}

// Tool returns the override for name, if any.
func (c *Config) Tool(name string) (ToolConfig, bool) {
	t, ok := c.Tools[name]
	return t, ok
}

// Hierarchy returns the custom manager order for language, if configured.
func (c *Config) Hierarchy(language string) []string {
	return c.Preferences.PackageManagers[language]
}

// Timeout is the per-command timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// CacheTTL is how long detection results stay valid.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Preferences.CacheTTLSeconds) * time.Second
}

// Load reads and validates a config file. Missing preferences take their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// LoadOrDefault behaves like Load but returns Default when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes and validates config data. name is used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", name, err)
	}
	cfg.applyDefaults()

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return &cfg, nil
}

// ValidationError holds every problem found in a config file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks cfg for semantic problems. Manager names are not checked
// against the registry here; unknown managers are simply never available.
func Validate(cfg *Config) []string {
	var errs []string
	p := cfg.Preferences

	switch p.BreakingChanges {
	case "", "accept", "warn", "reject":
	default:
		errs = append(errs, fmt.Sprintf("preferences: invalid breaking_changes '%s': must be one of: accept, warn, reject", p.BreakingChanges))
	}

	switch p.Reconciliation {
	case "", "parallel", "aggressive":
	default:
		errs = append(errs, fmt.Sprintf("preferences: invalid reconciliation '%s': must be one of: parallel, aggressive", p.Reconciliation))
	}

	if p.MaxWorkers < 0 {
		errs = append(errs, fmt.Sprintf("preferences: max_workers must be positive, got %d", p.MaxWorkers))
	}
	if p.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("preferences: timeout_seconds must be positive, got %d", p.TimeoutSeconds))
	}
	if p.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("preferences: cache_ttl_seconds must not be negative, got %d", p.CacheTTLSeconds))
	}

	langs := make([]string, 0, len(p.PackageManagers))
	for lang := range p.PackageManagers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if len(p.PackageManagers[lang]) == 0 {
			errs = append(errs, fmt.Sprintf("preferences: package_managers for '%s' is empty", lang))
		}
	}

	names := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := cfg.Tools[name]
		if t.Method != "" && t.Method == t.Fallback {
			errs = append(errs, fmt.Sprintf("tool '%s': fallback is the same as method '%s'", name, t.Method))
		}
	}

	return errs
}

// Dir returns the toolkeeper config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/toolkeeper if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "toolkeeper"), nil
}

// DefaultPath returns Dir()/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}
