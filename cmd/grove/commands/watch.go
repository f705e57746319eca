package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/grove/internal/filter"
	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/internal/timespec"
	"github.com/dyluth/grove/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchKind         string
	watchNode         string
	watchKey          string
	watchTree         string
	watchSince        string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream an agent's blackboard changes and execution events",
	Long: `Monitor a running agent in real time.

Streams blackboard changes and scheduler events (tasks started, finished
and aborted, decorators and services activating, subtrees pushed and
popped) as the agent publishes them.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Filters (glob patterns, ANDed together):
  --kind   - Execution event kind ("task_*", "tree_finished")
  --node   - Node name ("Patrol*")
  --key    - Blackboard key; shows only changes
  --tree   - Exact tree name
  --since  - Drop events older than this duration ago

Examples:
  grove watch --agent guard-1
  grove watch -a guard-1 --kind "task_*" --node "Move*"
  grove watch -a guard-1 --key Alarm --output=json > alarm.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchKind, "kind", "", "Filter execution events by kind (glob pattern)")
	watchCmd.Flags().StringVar(&watchNode, "node", "", "Filter execution events by node name (glob pattern)")
	watchCmd.Flags().StringVar(&watchKey, "key", "", "Filter blackboard changes by key (glob pattern)")
	watchCmd.Flags().StringVar(&watchTree, "tree", "", "Filter execution events by tree name")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Only show events newer than this duration ago (e.g. 30s)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	outputFormat, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	criteria := &filter.Criteria{
		KindGlob: watchKind,
		NodeGlob: watchNode,
		KeyGlob:  watchKey,
		Tree:     watchTree,
	}
	if watchSince != "" {
		window, err := timespec.Duration(watchSince)
		if err != nil {
			return printer.Error("invalid --since", err.Error(), []string{"Pass a duration:\n  --since 30s"})
		}
		criteria.SinceTimestampMs = time.Now().Add(-window).UnixMilli()
	}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid filter", err.Error(), []string{"Check the glob syntax of --kind, --node and --key"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, name, err := targetAgent(ctx, "watch")
	if err != nil {
		return err
	}
	defer client.Close()

	return watch.StreamActivity(ctx, client, name, outputFormat, criteria, os.Stdout)
}
