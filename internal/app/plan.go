package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/resolver"
)

var planCmd = &cobra.Command{
	Use:   "plan <tool[@version]>...",
	Short: "Show the order an install would run in",
	Long: `Show the dependency levels 'toolkeeper install' would use for the given
tools, including catalog prerequisites that are not installed yet.

Tools in the same level are installed in parallel; each level starts after
the previous one has finished. Nothing is installed.`,
	Example: `  toolkeeper plan ruff prettier`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPlan,
}

func init() {
	RootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	req, err := s.parseArgs(args)
	if err != nil {
		return err
	}

	levels := resolver.Resolve(s.installSpecs(ctx, req))
	if len(levels) > 0 && hasCycle(levels) {
		s.logger.Warn("dependency cycle detected; the last level holds every tool in the cycle")
	}

	if jsonOutput {
		return output.WriteJSON(cmd.OutOrStdout(), levels)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderPlan(levels))
	return nil
}

// hasCycle reports whether the last level still depends on itself, which
// only happens when the resolver gave up on a cycle.
func hasCycle(levels []resolver.Level) bool {
	last := levels[len(levels)-1]
	in := make(map[string]bool, len(last))
	for _, s := range last {
		in[s.ToolName] = true
	}
	for _, s := range last {
		for _, d := range s.Dependencies {
			if in[d] {
				return true
			}
		}
	}
	return false
}
