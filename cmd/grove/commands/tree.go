package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/grove/internal/inspect"
	"github.com/dyluth/grove/internal/printer"
	"github.com/spf13/cobra"
)

var treeOutputFormat string

var treeCmd = &cobra.Command{
	Use:   "tree [NAME]",
	Short: "Show the node outline of a tree",
	Long: `Print a tree's nodes in execution order with their roles, logic,
instance memory ranges and decorator or service details.

Without NAME the agent tree from grove.yml is shown.

Output Formats:
  default - Indented outline
  json    - Array of outline rows

Examples:
  grove tree
  grove tree patrol --output=json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTreeCmd,
}

func init() {
	treeCmd.Flags().StringVarP(&treeOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(treeCmd)
}

func runTreeCmd(cmd *cobra.Command, args []string) error {
	if treeOutputFormat != "default" && treeOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", treeOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, bundle, err := loadBundle()
	if err != nil {
		return err
	}

	name := cfg.Agent.Tree
	if len(args) > 0 {
		name = args[0]
	}

	tree, ok := bundle.Library.Get(name)
	if !ok {
		return printer.Error(
			fmt.Sprintf("tree '%s' not found", name),
			fmt.Sprintf("%s defines: %s", configPath, strings.Join(bundle.Library.Names(), ", ")),
			[]string{"Pick one of the defined trees:\n  grove tree <name>"},
		)
	}

	if treeOutputFormat == "json" {
		return inspect.FormatJSON(os.Stdout, inspect.Outline(tree))
	}
	inspect.FormatOutline(os.Stdout, tree)
	return nil
}
