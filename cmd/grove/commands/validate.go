package commands

import (
	"github.com/dyluth/grove/internal/printer"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check grove.yml and build every tree",
	Long: `Parse grove.yml, validate blackboards, trees and the agent section, then
build and initialize every tree.

Building catches errors plain parsing cannot: unknown node kinds, bad
params, abort modes a parent composite does not allow, run_behavior cycles
and references to missing subtrees.

Examples:
  grove validate
  grove validate -f examples/guard.yml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, bundle, err := loadBundle()
	if err != nil {
		return err
	}

	names := bundle.Library.Names()
	printer.Success("%s is valid\n", configPath)
	printer.Info("  Blackboards: %d\n", len(bundle.Assets))
	printer.Info("  Trees:       %d\n", len(names))
	for _, name := range names {
		tree, _ := bundle.Library.Get(name)
		marker := ""
		if name == cfg.Agent.Tree {
			marker = " (agent)"
		}
		printer.Info("    %s: %d nodes%s\n", name, len(tree.Nodes()), marker)
	}
	return nil
}
