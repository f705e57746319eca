package commands

import (
	"strings"

	"github.com/dyluth/grove/internal/config"
	"github.com/dyluth/grove/internal/printer"
	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the node kinds grove.yml can use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := config.Names()
		for _, role := range []string{"composite", "decorator", "service", "task"} {
			printer.Info("%-10s %s\n", role+":", strings.Join(names[role], ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
