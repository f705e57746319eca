package commands

import (
	"path/filepath"

	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Create a starter grove.yml",
	Long: `Write a starter grove.yml into DIR (default: the current directory).

The starter defines a guard agent that patrols under a cooldown, reacts to
an Alarm key with a preempting blackboard decorator, waits for messages and
runs a subtree. It validates and builds before init returns.

Use --force to overwrite an existing grove.yml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --file flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing grove.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error(
				"project already initialized",
				"Found an existing "+filepath.Join(dir, scaffold.ConfigFile)+".",
				[]string{"Reinitialize (overwrites the file):\n  grove init --force"},
			)
		}
	}

	paths, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Initialized grove project\n")
	printer.Info("\nCreated:\n")
	for _, p := range paths {
		printer.Info("  ✓ %s\n", p)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Inspect the guard tree:  grove tree\n")
	printer.Info("  2. Simulate 30 seconds:     grove run --for 30s --set Alarm=true\n")
	printer.Info("  3. Run it as an agent:      GROVE_AGENT_NAME=guard-1 groved\n")
	return nil
}
