package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/grove/internal/agent"
	"github.com/dyluth/grove/pkg/blackboard"
)

// SnapshotNotFoundError means the agent never wrote a snapshot.
type SnapshotNotFoundError struct {
	Agent string
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("no snapshot found for agent '%s'", e.Agent)
}

// IsNotFound returns true if the error is a SnapshotNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*SnapshotNotFoundError)
	return ok
}

// LoadSnapshot reads and decodes the agent's latest snapshot.
func LoadSnapshot(ctx context.Context, client *blackboard.Client) (*agent.Snapshot, error) {
	data, err := client.ReadSnapshot(ctx)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return nil, &SnapshotNotFoundError{Agent: client.AgentName()}
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap agent.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ShowSnapshot writes the agent's latest snapshot in the requested format.
// jsonl writes only the blackboard values.
func ShowSnapshot(ctx context.Context, client *blackboard.Client, format OutputFormat, w io.Writer) error {
	snap, err := LoadSnapshot(ctx, client)
	if err != nil {
		return err
	}

	switch format {
	case OutputFormatJSON:
		return FormatJSON(w, snap)
	case OutputFormatJSONL:
		return FormatValuesJSONL(w, snap.Scheduler.Blackboard)
	default:
		FormatSnapshotTable(w, snap)
		return nil
	}
}

// ShowValues writes the mirrored blackboard hash. A missing hash prints as
// an empty blackboard.
func ShowValues(ctx context.Context, client *blackboard.Client, format OutputFormat, w io.Writer) error {
	values, err := client.ReadValues(ctx)
	if err != nil && !blackboard.IsNotFound(err) {
		return fmt.Errorf("failed to read blackboard values: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}

	switch format {
	case OutputFormatJSON:
		return FormatJSON(w, values)
	case OutputFormatJSONL:
		return FormatValuesJSONL(w, values)
	default:
		FormatValuesTable(w, values)
		return nil
	}
}
