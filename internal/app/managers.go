package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/toolkeeper/internal/output"
	"github.com/blackwell-systems/toolkeeper/internal/pkgmgr"
)

var (
	managersLanguage string

	managersCmd = &cobra.Command{
		Use:   "managers",
		Short: "List package managers and whether they are available here",
		Long: `List every package manager toolkeeper knows, its category and the
languages it installs for, and whether it is available on this machine.

Privileged managers (marked with *) run through sudo and are never rolled
back automatically.`,
		Example: `  toolkeeper managers
  toolkeeper managers --language python`,
		Args: cobra.NoArgs,
		RunE: runManagers,
	}
)

func init() {
	managersCmd.Flags().StringVar(&managersLanguage, "language", "", "only managers that install tools for this language")

	RootCmd.AddCommand(managersCmd)
}

// managerInfo is the JSON form of one registry entry.
type managerInfo struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Languages  []string `json:"languages"`
	Privileged bool     `json:"privileged"`
	Available  bool     `json:"available"`
}

func runManagers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	managers := s.registry.Managers()
	if managersLanguage != "" {
		managers = s.registry.ForLanguage(managersLanguage)
	}

	available := make(map[string]bool, len(managers))
	infos := make([]managerInfo, 0, len(managers))
	for _, m := range managers {
		available[m.Name] = s.registry.IsAvailable(ctx, m.Name)
		infos = append(infos, infoFor(m, available[m.Name]))
	}

	text := output.RenderManagers(managers, func(name string) bool { return available[name] })
	return emit(cmd.OutOrStdout(), infos, text)
}

func infoFor(m *pkgmgr.Manager, available bool) managerInfo {
	langs := m.Languages
	if langs == nil {
		langs = []string{}
	}
	return managerInfo{
		Name:       m.Name,
		Category:   string(m.Category),
		Languages:  langs,
		Privileged: m.Privileged,
		Available:  available,
	}
}
