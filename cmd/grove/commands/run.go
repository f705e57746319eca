package commands

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/grove/internal/agent"
	"github.com/dyluth/grove/internal/inspect"
	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/internal/timespec"
	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	runTree     string
	runMode     string
	runTicks    int
	runDelta    string
	runFor      string
	runSets     []string
	runMessages []string
	runPublish  bool
	runTrace    bool
	runOutput   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a tree locally for a number of ticks",
	Long: `Run a tree in simulated time and print the final scheduler state.

Ticks advance world time by --dt without sleeping, so a 5 minute patrol
finishes instantly. The run stops early when a single_run tree finishes.

Messages are delivered before the numbered tick:
  --message 3=path_found            succeeded message of type path_found
  --message 3=path_found:west       with payload "west"
  --message 5=!path_found           failed message

With --publish the run mirrors its blackboard, events and snapshots to
Redis under --agent, so 'grove watch' and 'grove inspect' can follow it.

Examples:
  grove run --ticks 20
  grove run --for 30s --dt 0.5 --set Alarm=true
  grove run --tree courier --mode single_run --message 2=path_found:west
  grove run --publish --agent sim-1 --trace`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTree, "tree", "t", "", "Tree to run (defaults to agent.tree)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Execution mode: looped or single_run (defaults to agent.mode)")
	runCmd.Flags().IntVarP(&runTicks, "ticks", "n", 100, "Number of ticks to run")
	runCmd.Flags().StringVar(&runDelta, "dt", "", "Seconds per tick (defaults to 1/agent.tick_rate)")
	runCmd.Flags().StringVar(&runFor, "for", "", "Simulated duration to run, overrides --ticks (e.g. 30s, 2m)")
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "Initial blackboard value KEY=VALUE (repeatable)")
	runCmd.Flags().StringArrayVar(&runMessages, "message", nil, "Message TICK=[!]TYPE[:PAYLOAD] (repeatable)")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "Mirror the run to Redis under --agent")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Log execution events as JSON lines")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "default", "Final state format (default or json)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if runOutput != "default" && runOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", runOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, bundle, err := loadBundle()
	if err != nil {
		return err
	}

	spec := *cfg.Agent
	if runTree != "" {
		spec.Tree = runTree
	}
	if runMode != "" {
		spec.Mode = runMode
	}
	mode, err := spec.ExecutionMode()
	if err != nil {
		return printer.Error("invalid mode", err.Error(), []string{"Valid modes: looped, single_run"})
	}

	dt := 1 / spec.TickRate
	if runDelta != "" {
		if dt, err = timespec.Seconds(runDelta); err != nil || dt <= 0 {
			return printer.Error("invalid --dt", fmt.Sprintf("Cannot use %q as a tick length.", runDelta), []string{"Pass a positive duration:\n  --dt 0.1"})
		}
	}

	ticks := runTicks
	if runFor != "" {
		total, err := timespec.Seconds(runFor)
		if err != nil {
			return printer.Error("invalid --for", err.Error(), []string{"Pass a duration:\n  --for 30s"})
		}
		ticks = int(math.Ceil(total / dt))
	}
	if ticks <= 0 {
		return printer.Error("nothing to run", "The run needs at least one tick.", []string{"Pass --ticks N or --for DURATION"})
	}

	values, err := parseAssignments(runSets, spec.Values)
	if err != nil {
		return printer.Error("invalid --set", err.Error(), []string{"Use the form:\n  --set Key=value"})
	}

	schedule, err := parseMessageSchedule(runMessages)
	if err != nil {
		return printer.Error("invalid --message", err.Error(), []string{"Use the form:\n  --message 3=path_found:west"})
	}

	name := agentName
	var client *blackboard.Client
	if runPublish {
		if name, err = requireAgent("run --publish"); err != nil {
			return err
		}
		if client, err = connectBlackboard(ctx, name); err != nil {
			return err
		}
		defer client.Close()
	}
	if name == "" {
		name = "local"
	}

	var trace bt.TraceSink
	if runTrace {
		trace = bt.LogTraceSink{}
	}

	engine, err := agent.New(agent.Options{
		Name:          name,
		Bundle:        bundle,
		Tree:          spec.Tree,
		Mode:          mode,
		TickRate:      1 / dt,
		MaxSearches:   spec.MaxSearchesPerTick,
		Values:        values,
		Client:        client,
		SnapshotEvery: 1,
		FlushTimeout:  2 * time.Second,
		Trace:         trace,
	})
	if err != nil {
		return printer.Error("failed to create agent", err.Error(), nil)
	}

	if err := engine.Start(ctx); err != nil {
		return printer.Error("failed to start tree", err.Error(), nil)
	}

	ran := 0
	for ran < ticks && engine.Scheduler().IsRunning() {
		ran++
		for _, msg := range schedule[ran] {
			engine.SendMessage(msg)
		}
		if err := engine.Step(ctx, dt); err != nil {
			printer.Warning("tick %d: failed to publish state: %v\n", ran, err)
		}
	}

	snap := engine.BuildSnapshot()
	if runOutput == "json" {
		return inspect.FormatJSON(os.Stdout, snap)
	}

	state := "still running"
	if !snap.Scheduler.Running {
		state = "finished"
	}
	printer.Success("Ran '%s' for %d ticks (%.2fs simulated, %s)\n\n", spec.Tree, ran, float64(ran)*dt, state)
	inspect.FormatSnapshotTable(os.Stdout, &snap)
	return nil
}

// parseAssignments merges KEY=VALUE pairs over base without modifying it.
func parseAssignments(pairs []string, base map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		values[k] = v
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		values[strings.TrimSpace(key)] = value
	}
	return values, nil
}

// parseMessageSchedule groups TICK=[!]TYPE[:PAYLOAD] entries by tick.
func parseMessageSchedule(entries []string) (map[int][]bt.Message, error) {
	schedule := make(map[int][]bt.Message)
	for _, entry := range entries {
		tickText, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("expected TICK=TYPE, got %q", entry)
		}
		tick, err := strconv.Atoi(strings.TrimSpace(tickText))
		if err != nil || tick < 1 {
			return nil, fmt.Errorf("tick must be a positive integer, got %q", tickText)
		}

		msg := bt.Message{Success: true}
		if strings.HasPrefix(rest, "!") {
			msg.Success = false
			rest = rest[1:]
		}
		msg.Type, msg.Payload, _ = strings.Cut(rest, ":")
		if msg.Type == "" {
			return nil, fmt.Errorf("message type cannot be empty in %q", entry)
		}
		schedule[tick] = append(schedule[tick], msg)
	}
	return schedule, nil
}
