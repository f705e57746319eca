package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/grove/internal/inspect"
	"github.com/dyluth/grove/internal/printer"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents that have published a snapshot",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Any name works for listing; the scan is server-wide.
	client, err := connectBlackboard(ctx, "grove-cli")
	if err != nil {
		return err
	}
	defer client.Close()

	names, err := client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}
	if len(names) == 0 {
		printer.Info("No agents found\n")
		return nil
	}

	w := os.Stdout
	fmt.Fprintf(w, "%-20s %-16s %-10s %-8s %s\n", "AGENT", "TREE", "STATE", "TICKS", "RUN")
	for _, name := range names {
		snap, err := inspect.LoadSnapshot(ctx, client.ForAgent(name))
		if err != nil {
			fmt.Fprintf(w, "%-20s %-16s %-10s %-8s %s\n", name, "-", "unreadable", "-", "-")
			continue
		}
		state := "stopped"
		if snap.Scheduler.Running {
			state = "running"
		}
		fmt.Fprintf(w, "%-20s %-16s %-10s %-8d %s\n", name, snap.Tree, state, snap.Ticks, shortID(snap.RunID))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
