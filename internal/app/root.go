package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/logging"
)

var (
	dbPath      string
	configPath  string
	catalogPath string
	verbose     bool
	jsonOutput  bool
	logFormat   string

	// RootCmd is the root command for toolkeeper
	RootCmd = &cobra.Command{
		Use:   "toolkeeper",
		Short: "Install, upgrade and reconcile developer CLI tools across package managers",
		Long: `toolkeeper installs and upgrades command-line developer tools through
whichever package manager fits best (uv, pipx, cargo, npm, brew, apt, ...),
and reconciles tools that ended up installed more than once.

Installs and upgrades run in dependency order with independent tools in
parallel. Transient failures are retried with backoff, major upgrades are
checked against your breaking-change policy, and upgrades are backed up so
a failed upgrade restores the previous binary.

Configuration lives in ~/.config/toolkeeper/config.yaml; run history in
~/.toolkeeper/toolkeeper.db.

Examples:
  # Install tools (prerequisites from the catalog come first)
  toolkeeper install ruff ripgrep

  # Pin a version
  toolkeeper install ripgrep@14.1.0

  # Upgrade everything that is installed, undoing all of it on any failure
  toolkeeper upgrade --all --atomic

  # Find duplicate installations and print PATH guidance
  toolkeeper reconcile --all

  # Show recent runs
  toolkeeper history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(os.Stderr, logging.Options{
				Verbose: verbose,
				JSON:    logging.ParseFormat(logFormat),
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "toolkeeper: developer tool orchestration")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'toolkeeper managers' to see which package managers are available.")
			fmt.Fprintln(out, "Run 'toolkeeper --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.toolkeeper/toolkeeper.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/toolkeeper/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "extra catalog file merged over the built-in one")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command. SIGINT and SIGTERM cancel the context;
// units that have not started are reported as skipped.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "toolkeeper.db"), nil
}

// stateDir returns ~/.toolkeeper, creating it if needed.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".toolkeeper")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create toolkeeper directory: %w", err)
	}
	return dir, nil
}
