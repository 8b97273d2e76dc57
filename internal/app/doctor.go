package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/config"
	"github.com/blackwell-systems/toolkeeper/internal/shell"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your toolkeeper setup.

Checks:
  • Config file parses and validates
  • Catalog loads
  • At least one package manager is available
  • History database is accessible
  • Which shell profile PATH guidance targets`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Running toolkeeper diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: config
	if _, err := loadConfig(); err != nil {
		fmt.Fprintln(out, "✗ Config is invalid:", err)
		criticalIssues++
	} else if configPath != "" {
		fmt.Fprintln(out, "✓ Config loaded:", configPath)
	} else if path, err := config.DefaultPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintln(out, "✓ Config loaded:", path)
		} else {
			fmt.Fprintln(out, "✓ No config file, using defaults")
		}
	}

	// Check 2: catalog
	if cat, err := loadCatalog(); err != nil {
		fmt.Fprintln(out, "✗ Catalog is invalid:", err)
		criticalIssues++
	} else {
		fmt.Fprintf(out, "✓ Catalog: %d tools\n", len(cat.Names()))
	}

	if criticalIssues > 0 {
		fmt.Fprintln(out)
		return fmt.Errorf("%d critical issue(s) found", criticalIssues)
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Environment: %s\n", s.env)

	// Check 3: managers
	var available []string
	for _, m := range s.registry.Managers() {
		if s.registry.IsAvailable(ctx, m.Name) {
			available = append(available, m.Name)
		}
	}
	if len(available) == 0 {
		fmt.Fprintln(out, "✗ No package managers available")
		fmt.Fprintln(out, "  Action: install one of uv, pipx, cargo, npm or your OS package manager")
		criticalIssues++
	} else {
		fmt.Fprintf(out, "✓ %d package manager(s) available: %v\n", len(available), available)
	}

	// Check 4: database, warning only
	if st, err := openStore(); err != nil {
		fmt.Fprintln(out, "⚠ History database unavailable:", err)
		warningIssues++
	} else {
		runs, err := st.ListRuns(1)
		st.Close()
		switch {
		case err != nil:
			fmt.Fprintln(out, "⚠ Cannot read run history:", err)
			warningIssues++
		case len(runs) == 0:
			fmt.Fprintln(out, "✓ History database ready (no runs yet)")
		default:
			fmt.Fprintf(out, "✓ History database ready (last run %s)\n", runs[0].StartedAt.Local().Format("2006-01-02 15:04"))
		}
	}

	// Check 5: shell
	kind := shell.Current()
	if home, err := os.UserHomeDir(); err == nil {
		fmt.Fprintf(out, "✓ Shell: %s (PATH changes go in %s)\n", kind, shell.ConfigFile(kind, home))
	}

	fmt.Fprintln(out)
	switch {
	case criticalIssues > 0:
		return fmt.Errorf("%d critical issue(s) found", criticalIssues)
	case warningIssues > 0:
		fmt.Fprintf(out, "%d warning(s); toolkeeper will still work.\n", warningIssues)
	default:
		fmt.Fprintln(out, "All checks passed.")
	}
	return nil
}
