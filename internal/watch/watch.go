package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dyluth/grove/internal/agent"
	"github.com/dyluth/grove/internal/filter"
	"github.com/dyluth/grove/pkg/blackboard"
)

// OutputFormat selects how streamed events are rendered.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, "":
		return OutputFormatDefault, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

// formatter renders one event per call.
type formatter interface {
	FormatChange(ev *blackboard.ChangeEvent) error
	FormatExecution(ev *blackboard.ExecutionEvent) error
}

func newFormatter(format OutputFormat, w io.Writer) formatter {
	if format == OutputFormatJSON {
		return &jsonFormatter{encoder: json.NewEncoder(w)}
	}
	return &defaultFormatter{writer: w}
}

// StreamActivity prints blackboard changes and execution events for an agent
// until ctx is cancelled or a subscription closes. A nil criteria shows
// everything.
func StreamActivity(ctx context.Context, client *blackboard.Client, agentName string, format OutputFormat, criteria *filter.Criteria, w io.Writer) error {
	if criteria == nil {
		criteria = &filter.Criteria{}
	}

	changes, err := client.SubscribeChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to blackboard changes: %w", err)
	}
	defer changes.Close()

	executions, err := client.SubscribeExecutionEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to execution events: %w", err)
	}
	defer executions.Close()

	changeErrs, execErrs := changes.Errors(), executions.Errors()
	out := newFormatter(format, w)
	if format == OutputFormatDefault {
		fmt.Fprintf(w, "Watching agent '%s' (Ctrl+C to stop)\n\n", agentName)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-changes.Events():
			if !ok {
				return nil
			}
			if !criteria.MatchesChange(ev) {
				continue
			}
			if err := out.FormatChange(ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}

		case ev, ok := <-executions.Events():
			if !ok {
				return nil
			}
			if !criteria.MatchesExecution(ev) {
				continue
			}
			if err := out.FormatExecution(ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}

		case err, ok := <-changeErrs:
			if !ok {
				changeErrs = nil
				continue
			}
			log.Printf("[Watch] Change subscription error: %v", err)

		case err, ok := <-execErrs:
			if !ok {
				execErrs = nil
				continue
			}
			log.Printf("[Watch] Execution subscription error: %v", err)
		}
	}
}

// PollForSnapshot polls for an agent snapshot newer than sinceMs.
// Returns the snapshot or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func PollForSnapshot(ctx context.Context, client *blackboard.Client, sinceMs int64, timeout time.Duration) (*agent.Snapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for snapshot after %v", timeout)

		case <-ticker.C:
			data, err := client.ReadSnapshot(ctx)
			if err != nil {
				if blackboard.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to read snapshot: %w", err)
			}

			var snap agent.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("failed to decode snapshot: %w", err)
			}
			if snap.TimestampMs <= sinceMs {
				continue
			}
			return &snap, nil
		}
	}
}
