// Package backup snapshots a tool's binary and config files before an
// upgrade and restores them if the upgrade fails.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrChecksumMismatch is returned when a backup copy no longer matches the
// checksum recorded when it was taken.
var ErrChecksumMismatch = errors.New("backup checksum mismatch")

// UpgradeBackup records one snapshot. Values are created by Manager.Create
// and never modified afterwards.
type UpgradeBackup struct {
	ToolName       string   `json:"tool_name"`
	Version        string   `json:"version"`
	BinaryPath     string   `json:"binary_path"`
	BackupDir      string   `json:"backup_dir"`
	ConfigPaths    []string `json:"config_paths"`
	Checksum       string   `json:"checksum"`
	PackageManager string   `json:"package_manager"`
}

// BinaryCopy returns the path of the backed-up binary.
func (b *UpgradeBackup) BinaryCopy() string {
	return filepath.Join(b.BackupDir, filepath.Base(b.BinaryPath))
}

// Manager creates and restores backups under a root directory.
type Manager struct {
	root   string
	home   string
	cwd    string
	logger *slog.Logger
}

// New creates a Manager writing into root. An empty root uses the system
// temporary directory.
func New(root string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Manager{root: root, home: home, cwd: cwd, logger: slog.Default()}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetSearchRoots overrides the directories config files must live under.
func (m *Manager) SetSearchRoots(home, cwd string) {
	m.home = home
	m.cwd = cwd
}

// Create snapshots binaryPath and any discoverable config files for tool.
func (m *Manager) Create(tool, binaryPath, version, manager string) (*UpgradeBackup, error) {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}
	dir, err := os.MkdirTemp(m.root, fmt.Sprintf("upgrade_backup_%s_", sanitize(tool)))
	if err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// The checksum is taken from the bytes written to the copy, so it
	// describes the backup even if the live binary changes meanwhile.
	checksum, err := copyFile(binaryPath, filepath.Join(dir, filepath.Base(binaryPath)))
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to copy binary: %w", err)
	}

	var configs []string
	used := map[string]bool{filepath.Base(binaryPath): true}
	for _, cfg := range m.discoverConfigs(tool) {
		name := filepath.Base(cfg)
		if used[name] {
			continue
		}
		if _, err := copyFile(cfg, filepath.Join(dir, name)); err != nil {
			m.logger.Warn("skipping config file", "tool", tool, "path", cfg, "error", err)
			continue
		}
		used[name] = true
		configs = append(configs, cfg)
	}

	b := &UpgradeBackup{
		ToolName:       tool,
		Version:        version,
		BinaryPath:     binaryPath,
		BackupDir:      dir,
		ConfigPaths:    configs,
		Checksum:       checksum,
		PackageManager: manager,
	}
	m.logger.Debug("created backup", "tool", tool, "dir", dir, "configs", len(configs))
	return b, nil
}

// Restore verifies the backup copy against the recorded checksum and, only
// if it matches, puts the binary and config files back. Returns false
// without touching the live binary on mismatch or any I/O error.
func (m *Manager) Restore(b *UpgradeBackup) bool {
	if err := m.restore(b); err != nil {
		m.logger.Error("restore failed", "tool", b.ToolName, "backup", b.BackupDir, "error", err)
		return false
	}
	m.logger.Info("restored from backup", "tool", b.ToolName, "version", b.Version)
	return true
}

func (m *Manager) restore(b *UpgradeBackup) error {
	if b == nil {
		return errors.New("nil backup")
	}

	sum, err := fileChecksum(b.BinaryCopy())
	if err != nil {
		return fmt.Errorf("failed to checksum backup copy: %w", err)
	}
	if sum != b.Checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, b.Checksum, sum)
	}

	if err := replaceFile(b.BinaryCopy(), b.BinaryPath); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	for _, cfg := range b.ConfigPaths {
		if err := replaceFile(filepath.Join(b.BackupDir, filepath.Base(cfg)), cfg); err != nil {
			return fmt.Errorf("failed to restore config %s: %w", cfg, err)
		}
	}
	return nil
}

// Delete removes the backup directory.
func (m *Manager) Delete(b *UpgradeBackup) error {
	if b == nil || b.BackupDir == "" {
		return nil
	}
	if err := os.RemoveAll(b.BackupDir); err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", b.BackupDir, err)
	}
	return nil
}

// discoverConfigs returns existing config files for tool in conventional
// locations, restricted to the home and working directories.
func (m *Manager) discoverConfigs(tool string) []string {
	var candidates []string
	if m.home != "" {
		candidates = append(candidates,
			filepath.Join(m.home, "."+tool+"rc"),
			filepath.Join(m.home, "."+tool+".toml"),
			filepath.Join(m.home, "."+tool+".yaml"),
			filepath.Join(m.home, ".config", tool, "config"),
			filepath.Join(m.home, ".config", tool, "config.toml"),
			filepath.Join(m.home, ".config", tool, "config.yaml"),
			filepath.Join(m.home, ".config", tool, "config.json"),
		)
	}
	if m.cwd != "" {
		candidates = append(candidates,
			filepath.Join(m.cwd, "."+tool+"rc"),
			filepath.Join(m.cwd, "."+tool+".toml"),
		)
	}

	var found []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		resolved, err := filepath.EvalSymlinks(c)
		if err != nil || !m.withinRoots(resolved) || seen[resolved] {
			continue
		}
		seen[resolved] = true
		found = append(found, c)
	}
	return found
}

// withinRoots reports whether path is inside the home or working directory.
func (m *Manager) withinRoots(path string) bool {
	for _, root := range []string{m.home, m.cwd} {
		if root == "" {
			continue
		}
		if r, err := filepath.EvalSymlinks(root); err == nil {
			root = r
		}
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel) {
			return true
		}
	}
	return false
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile copies src to dst and returns the sha256 of the bytes written.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// replaceFile copies src over dst through a temp file in dst's directory
// and renames it into place, so a failed copy never truncates dst.
func replaceFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".restore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if _, err := copyFile(src, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator || r == ' ' {
			return '_'
		}
		return r
	}, name)
}
