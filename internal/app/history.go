package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/output"
)

var (
	historyLimit           int
	historyRun             int64
	historyReconciliations bool
	historyPruneDays       int

	historyCmd = &cobra.Command{
		Use:   "history [tool]",
		Short: "Show recorded installs, upgrades and reconciliations",
		Long: `Show the run history kept in the toolkeeper database.

Without arguments, lists recent runs. With a tool name, lists every install
and upgrade of that tool. Dry runs are not recorded.`,
		Example: `  toolkeeper history
  toolkeeper history ripgrep
  toolkeeper history --run 12
  toolkeeper history --reconciliations
  toolkeeper history --prune 90`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries (0 for all)")
	historyCmd.Flags().Int64Var(&historyRun, "run", 0, "show one run with its per-tool results")
	historyCmd.Flags().BoolVar(&historyReconciliations, "reconciliations", false, "list reconciliations instead of runs")
	historyCmd.Flags().IntVar(&historyPruneDays, "prune", 0, "delete runs older than this many days")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case historyPruneDays > 0:
		cutoff := time.Now().AddDate(0, 0, -historyPruneDays)
		n, err := st.DeleteRunsBefore(cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d run(s) older than %d days\n", n, historyPruneDays)
		return nil

	case historyRun > 0:
		run, err := st.GetRun(historyRun)
		if err != nil {
			return err
		}
		return emit(out, run, output.RenderRun(run))

	case historyReconciliations:
		tool := ""
		if len(args) == 1 {
			tool = args[0]
		}
		recs, err := st.ListReconciliations(tool, historyLimit)
		if err != nil {
			return err
		}
		return emit(out, recs, output.RenderReconciliations(recs))

	case len(args) == 1:
		events, err := st.ToolHistory(args[0], historyLimit)
		if err != nil {
			return err
		}
		return emit(out, events, output.RenderToolHistory(args[0], events))

	default:
		runs, err := st.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		return emit(out, runs, output.RenderRuns(runs))
	}
}
