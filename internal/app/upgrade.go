package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/engine"
	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
)

var (
	upgradeAll      bool
	upgradeFailFast bool
	upgradeAtomic   bool
	upgradeDryRun   bool
	upgradeYes      bool
	upgradeBreaking string

	upgradeCmd = &cobra.Command{
		Use:   "upgrade [tool[@version]...]",
		Short: "Upgrade installed tools, with backups and breaking-change checks",
		Long: `Upgrade one or more installed tools.

Each tool is upgraded through the package manager that installed it.
Before anything changes the current binary (and any config files found
next to it) is backed up; if the upgrade or its verification fails the
backup is restored.

Major-version upgrades follow the breaking-change policy:
  accept  upgrade without asking
  warn    ask for confirmation (declined when not on a terminal)
  reject  skip the upgrade

The policy comes from preferences.breaking_changes in your config and can
be overridden with --breaking.`,
		Example: `  toolkeeper upgrade ripgrep
  toolkeeper upgrade --all
  toolkeeper upgrade ruff@0.5.0 --breaking accept
  toolkeeper upgrade --all --atomic --yes`,
		RunE: runUpgrade,
	}
)

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeAll, "all", false, "upgrade every installed catalog and config tool")
	upgradeCmd.Flags().BoolVar(&upgradeFailFast, "fail-fast", false, "stop scheduling tools after the first failure")
	upgradeCmd.Flags().BoolVar(&upgradeAtomic, "atomic", false, "undo the whole run if any tool fails")
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "show what would run without changing anything")
	upgradeCmd.Flags().BoolVarP(&upgradeYes, "yes", "y", false, "approve breaking upgrades without asking")
	upgradeCmd.Flags().StringVar(&upgradeBreaking, "breaking", "", "breaking-change policy: accept, warn or reject")

	RootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if upgradeAll == (len(args) > 0) {
		return errors.New("give either tool names or --all")
	}

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	e, err := s.newEngine(confirmer(upgradeYes), upgradeBreaking)
	if err != nil {
		return err
	}

	var specs []resolver.ToolSpec
	if upgradeAll {
		specs = s.installedSpecs(ctx)
		if len(specs) == 0 {
			fmt.Fprintln(out, "No known tools are installed.")
			return nil
		}
	} else {
		req, err := s.parseArgs(args)
		if err != nil {
			return err
		}
		for _, name := range req.names {
			specs = append(specs, s.spec(req, name))
		}
	}

	started := time.Now()

	if len(specs) == 1 && !upgradeAtomic && !upgradeDryRun {
		res := e.Upgrade(ctx, specs[0])
		record(runFromSingle(engine.OpUpgrade, res, false, started))
		if err := emit(out, res, output.RenderUpgradeResult(res)); err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.ErrorMessage)
		}
		return nil
	}

	bar := newProgress(e, len(specs), "Upgrading")
	b := e.BulkUpgrade(ctx, specs, engine.Options{
		FailFast: upgradeFailFast,
		Atomic:   upgradeAtomic,
		DryRun:   upgradeDryRun,
	})
	if bar != nil {
		bar.Finish()
	}

	record(runFromBulk(b, started))
	if err := emit(out, b, output.RenderBulkResult(b)); err != nil {
		return err
	}
	if !b.Success {
		return fmt.Errorf("upgrade: %s", b.ErrorMessage)
	}
	return nil
}

// installedSpecs returns specs for every catalog or config tool found on
// PATH.
func (s *session) installedSpecs(ctx context.Context) []resolver.ToolSpec {
	req := request{targets: map[string]string{}}
	var specs []resolver.ToolSpec
	for _, n := range s.knownTools() {
		if s.isInstalled(ctx, n) {
			specs = append(specs, s.spec(req, n))
		}
	}
	return specs
}
