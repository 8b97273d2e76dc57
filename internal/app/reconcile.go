package app

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
	"github.com/blackwell-systems/toolkeeper/internal/shell"
	"github.com/blackwell-systems/toolkeeper/internal/store"
)

var (
	reconcileAll     bool
	reconcileMode    string
	reconcileYes     bool
	reconcileFixPath bool

	reconcileCmd = &cobra.Command{
		Use:   "reconcile [tool...]",
		Short: "Find tools installed more than once and resolve the duplicates",
		Long: `Find every installation of a tool on PATH and pick the preferred one.

Installations are ranked by how they were installed (vendor tool managers
first, then user-local installs, then system packages), then by version.

Modes:
  parallel    keep every installation; if the preferred one is shadowed by
              an earlier PATH entry, print how to fix PATH (default)
  aggressive  uninstall every installation except the preferred one

Protected system tools (python, git, ssh, coreutils, ...) are never touched
in aggressive mode.`,
		Example: `  toolkeeper reconcile ripgrep
  toolkeeper reconcile --all
  toolkeeper reconcile ripgrep --fix-path
  toolkeeper reconcile black --mode aggressive --yes`,
		RunE: runReconcile,
	}
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "reconcile every catalog and config tool")
	reconcileCmd.Flags().StringVar(&reconcileMode, "mode", "", "parallel or aggressive (default: preferences.reconciliation)")
	reconcileCmd.Flags().BoolVarP(&reconcileYes, "yes", "y", false, "remove duplicates without asking")
	reconcileCmd.Flags().BoolVar(&reconcileFixPath, "fix-path", false, "prepend the preferred installation's directory to PATH in your shell profile")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if reconcileAll == (len(args) > 0) {
		return errors.New("give either tool names or --all")
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	modeName := reconcileMode
	if modeName == "" {
		modeName = s.cfg.Preferences.Reconciliation
	}
	mode, err := reconcile.ParseMode(modeName)
	if err != nil {
		return err
	}

	var tools []string
	if reconcileAll {
		tools = s.knownTools()
	} else {
		req, err := s.parseArgs(args)
		if err != nil {
			return err
		}
		tools = req.names
	}

	r := s.newReconciler(confirmer(reconcileYes))

	var spinner *output.Spinner
	if !jsonOutput {
		spinner = output.NewSpinner(fmt.Sprintf("Scanning PATH for %d tool(s)...", len(tools)))
		spinner.Start()
	}
	results := r.ReconcileAll(ctx, tools, mode, reconcile.Options{Yes: reconcileYes})
	if spinner != nil {
		spinner.Stop()
	}

	recordReconciliations(mode, results)

	if err := emit(out, results, output.RenderReconcileResults(results)); err != nil {
		return err
	}

	if reconcileFixPath {
		fixPath(cmd, results)
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d tools not reconciled", failed, len(results))
	}
	return nil
}

// fixPath writes a PATH line for every shadowed preferred installation.
func fixPath(cmd *cobra.Command, results []*reconcile.Result) {
	out := cmd.ErrOrStderr()
	for _, res := range results {
		if res.ActionTaken != reconcile.ActionPathGuidance || res.Preferred == nil {
			continue
		}
		dir := filepath.Dir(res.Preferred.Path)
		added, file, err := shell.EnsurePathFirst(dir)
		switch {
		case err != nil:
			fmt.Fprintf(out, "Could not update shell profile for %s: %v\n", res.Tool, err)
		case added:
			fmt.Fprintf(out, "Added %s to the front of PATH in %s (open a new shell to apply)\n", dir, file)
		default:
			fmt.Fprintf(out, "%s already prepends %s\n", file, dir)
		}
	}
}

func recordReconciliations(mode reconcile.Mode, results []*reconcile.Result) {
	st, err := openStore()
	if err != nil {
		slog.Warn("reconciliations not recorded", "error", err)
		return
	}
	defer st.Close()

	now := time.Now()
	for _, res := range results {
		rec := &store.Reconciliation{
			Tool:          res.Tool,
			Mode:          string(mode),
			Action:        string(res.ActionTaken),
			Installations: len(res.Installations),
			Success:       res.Success,
			ErrorMessage:  res.ErrorMessage,
			CreatedAt:     now,
		}
		if res.Preferred != nil {
			rec.PreferredPath = res.Preferred.Path
		}
		if res.Active != nil {
			rec.ActivePath = res.Active.Path
		}
		if err := st.InsertReconciliation(rec); err != nil {
			slog.Warn("reconciliation not recorded", "tool", res.Tool, "error", err)
			return
		}
	}
}

// knownTools returns every catalog and config tool, sorted.
func (s *session) knownTools() []string {
	names := make(map[string]bool)
	for _, n := range s.catalog.Names() {
		names[n] = true
	}
	for n := range s.cfg.Tools {
		names[n] = true
	}
	tools := make([]string, 0, len(names))
	for n := range names {
		tools = append(tools, n)
	}
	sort.Strings(tools)
	return tools
}
