package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// AliasConfig maps command names to the catalog tool that provides them,
// e.g. rg=ripgrep or fd=fd-find.
type AliasConfig struct {
	Aliases map[string]string
}

// Resolve returns the tool name for name, or name itself if it is not an
// alias.
func (a *AliasConfig) Resolve(name string) string {
	if a != nil {
		if tool, ok := a.Aliases[name]; ok {
			return tool
		}
	}
	return name
}

// LoadAliases reads {dir}/aliases. A missing file yields an empty config.
// Lines are "command=tool"; blank lines, comments and malformed lines are
// skipped.
func LoadAliases(dir string) (*AliasConfig, error) {
	cfg := &AliasConfig{
		Aliases: make(map[string]string),
	}

	f, err := os.Open(filepath.Join(dir, "aliases"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, tool, ok := strings.Cut(line, "=")
		cmd, tool = strings.TrimSpace(cmd), strings.TrimSpace(tool)
		if !ok || cmd == "" || tool == "" {
			continue
		}
		cfg.Aliases[cmd] = tool
	}

	return cfg, scanner.Err()
}
