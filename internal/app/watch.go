package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/breaking"
	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/reconcile"
)

// watchSettle is how long the PATH must stay quiet before tools are
// re-checked. Package managers touch many files per install.
const watchSettle = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [tool...]",
	Short: "Re-check for duplicate installations whenever PATH directories change",
	Long: `Watch every directory on PATH and re-run a parallel-mode reconciliation
after anything is installed, removed or replaced there.

watch only reports; it never uninstalls anything. It runs in the
foreground until interrupted with Ctrl+C.`,
	Example: `  # Watch every catalog and config tool
  toolkeeper watch

  # Watch a few tools
  toolkeeper watch ripgrep fd`,
	RunE: runWatch,
}

func init() {
	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	tools := s.knownTools()
	if len(args) > 0 {
		req, err := s.parseArgs(args)
		if err != nil {
			return err
		}
		tools = req.names
	}

	r := s.newReconciler(breaking.Decline{})
	w, err := r.NewPathWatcher(filepath.SplitList(os.Getenv("PATH")))
	if err != nil {
		return fmt.Errorf("failed to watch PATH: %w", err)
	}

	changed := make(chan struct{}, 1)
	w.OnChange = func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	go w.Run(ctx)

	check := func() {
		results := r.ReconcileAll(ctx, tools, reconcile.Parallel, reconcile.Options{})
		text := "No duplicate installations found.\n"
		if dups := duplicates(results); len(dups) > 0 {
			text = output.RenderReconcileResults(dups)
		}
		if err := emit(out, results, text); err != nil {
			s.logger.Warn("failed to write results", "error", err)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching PATH for changes to %d tool(s) (press Ctrl+C to stop)...\n", len(tools))
	check()

	var settle <-chan time.Time
	for {
		select {
		case <-changed:
			settle = time.After(watchSettle)
		case <-settle:
			settle = nil
			fmt.Fprintf(out, "\nPATH changed at %s\n", time.Now().Format(time.TimeOnly))
			check()
		case <-ctx.Done():
			return nil
		}
	}
}

// duplicates keeps the results that found more than one installation.
func duplicates(results []*reconcile.Result) []*reconcile.Result {
	var out []*reconcile.Result
	for _, r := range results {
		if len(r.Installations) > 1 || r.ErrorMessage != "" {
			out = append(out, r)
		}
	}
	return out
}
