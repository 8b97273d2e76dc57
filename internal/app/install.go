package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/output"
)

var (
	installFailFast bool
	installAtomic   bool
	installDryRun   bool

	installCmd = &cobra.Command{
		Use:   "install <tool[@version]>...",
		Short: "Install tools through the best available package manager",
		Long: `Install one or more tools.

Each tool's package manager is chosen from your config (per-tool method,
then per-language hierarchy), then the built-in hierarchy for its
language. Catalog prerequisites that are not on PATH yet are installed
first; tools that do not depend on each other are installed in parallel.

Transient failures (network errors, lock contention) are retried with
exponential backoff.

With --atomic, any failure undoes every install of the run using a
generated rollback script. Without it, --fail-fast stops scheduling new
tools after the first failure; tools already running finish.`,
		Example: `  toolkeeper install ripgrep
  toolkeeper install ruff black --fail-fast
  toolkeeper install ripgrep@14.1.0 fd --atomic
  toolkeeper install typescript --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInstall,
	}
)

func init() {
	installCmd.Flags().BoolVar(&installFailFast, "fail-fast", false, "stop scheduling tools after the first failure")
	installCmd.Flags().BoolVar(&installAtomic, "atomic", false, "undo the whole run if any tool fails")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "show what would run without changing anything")

	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	req, err := s.parseArgs(args)
	if err != nil {
		return err
	}
	e, err := s.newEngine(confirmer(false), "")
	if err != nil {
		return err
	}

	specs := s.installSpecs(ctx, req)
	started := time.Now()

	// A lone tool with nothing to install first takes the single-unit path.
	if len(specs) == 1 && !installAtomic && !installDryRun {
		res := e.Install(ctx, specs[0])
		record(runFromSingle(engine.OpInstall, res, false, started))
		if err := emit(out, res, output.RenderInstallResult(res)); err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.ErrorMessage)
		}
		return nil
	}

	bar := newProgress(e, len(specs), "Installing")
	b := e.BulkInstall(ctx, specs, engine.Options{
		FailFast: installFailFast,
		Atomic:   installAtomic,
		DryRun:   installDryRun,
	})
	if bar != nil {
		bar.Finish()
	}

	record(runFromBulk(b, started))
	if err := emit(out, b, output.RenderBulkResult(b)); err != nil {
		return err
	}
	if !b.Success {
		return fmt.Errorf("install: %s", b.ErrorMessage)
	}
	return nil
}
