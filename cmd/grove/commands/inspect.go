package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/grove/internal/inspect"
	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/internal/timespec"
	"github.com/dyluth/grove/internal/watch"
	"github.com/spf13/cobra"
)

var (
	inspectOutputFormat string
	inspectValues       bool
	inspectWait         string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show an agent's latest scheduler snapshot",
	Long: `Display the state an agent last published: the subtree instance stack
with its active node and auxiliary nodes, running parallel tasks and the
blackboard.

With --values only the live blackboard hash is shown; it is updated every
tick, while snapshots are written every GROVE_SNAPSHOT_EVERY ticks.

Output Formats:
  default - Tables with truncated values
  json    - The complete snapshot as indented JSON
  jsonl   - One line per blackboard key

Examples:
  grove inspect --agent guard-1
  grove inspect -a guard-1 --values --output=jsonl | jq 'select(.key=="Alarm")'
  grove inspect -a guard-1 --wait 10s`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOutputFormat, "output", "o", "default", "Output format: default, json or jsonl")
	inspectCmd.Flags().BoolVar(&inspectValues, "values", false, "Show only the mirrored blackboard values")
	inspectCmd.Flags().StringVar(&inspectWait, "wait", "", "Wait up to this long for a snapshot newer than now")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	outputFormat, err := inspect.ParseOutputFormat(inspectOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", inspectOutputFormat),
			[]string{"Valid formats: default, json, jsonl"},
		)
	}

	client, name, err := targetAgent(ctx, "inspect")
	if err != nil {
		return err
	}
	defer client.Close()

	if inspectValues {
		return inspect.ShowValues(ctx, client, outputFormat, os.Stdout)
	}

	if inspectWait != "" {
		timeout, err := timespec.Duration(inspectWait)
		if err != nil {
			return printer.Error("invalid --wait", err.Error(), []string{"Pass a duration:\n  --wait 10s"})
		}
		if _, err := watch.PollForSnapshot(ctx, client, time.Now().UnixMilli(), timeout); err != nil {
			return printer.ErrorWithContext(
				"no fresh snapshot",
				err.Error(),
				map[string]string{"Agent": name},
				[]string{"Check the agent is running:\n  grove agents"},
			)
		}
	}

	err = inspect.ShowSnapshot(ctx, client, outputFormat, os.Stdout)
	if inspect.IsNotFound(err) {
		return printer.Error(
			fmt.Sprintf("no snapshot for agent '%s'", name),
			"The agent has not published a snapshot to this Redis server.",
			[]string{
				"List agents with snapshots:\n  grove agents",
				fmt.Sprintf("Publish a local run:\n  grove run --publish --agent %s", name),
			},
		)
	}
	return err
}
