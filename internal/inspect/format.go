package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/grove/internal/agent"
)

// OutputFormat specifies how inspect output is rendered.
type OutputFormat string

const (
	// OutputFormatDefault uses aligned tables with truncated values
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON outputs the complete document as indented JSON
	OutputFormatJSON OutputFormat = "json"

	// OutputFormatJSONL outputs one JSON object per blackboard key
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, "":
		return OutputFormatDefault, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

// FormatSnapshotTable writes the instance stack and blackboard of a snapshot.
func FormatSnapshotTable(w io.Writer, snap *agent.Snapshot) {
	state := "stopped"
	if snap.Scheduler.Running {
		state = "running"
		if snap.Scheduler.Paused {
			state = "paused"
		}
	}

	fmt.Fprintf(w, "Agent '%s' running tree '%s'\n", snap.Agent, snap.Tree)
	fmt.Fprintf(w, "  State:      %s\n", state)
	fmt.Fprintf(w, "  Ticks:      %d\n", snap.Ticks)
	fmt.Fprintf(w, "  World time: %.2fs\n", snap.Scheduler.WorldTime)
	fmt.Fprintf(w, "  Updated:    %s\n", formatTimestamp(snap.TimestampMs))
	fmt.Fprintln(w)

	if len(snap.Scheduler.Instances) == 0 {
		fmt.Fprintln(w, "No tree instances")
	} else {
		fmt.Fprintf(w, "%-3s %-16s %-20s %-10s %s\n", "#", "TREE", "ACTIVE", "TYPE", "PATH")
		fmt.Fprintf(w, "%-3s %-16s %-20s %-10s %s\n", "---", "----------------", "--------------------", "----------", "----------------------------------------")
		for i, inst := range snap.Scheduler.Instances {
			marker := fmt.Sprintf("%d", i)
			if i == snap.Scheduler.Active {
				marker += "*"
			}
			fmt.Fprintf(w, "%-3s %-16s %-20s %-10s %s\n",
				marker,
				truncate(inst.Tree, 16),
				truncate(dash(inst.ActiveNode), 20),
				inst.ActiveType,
				truncate(strings.Join(inst.ActivePath, " > "), 40),
			)
			if len(inst.ActiveAux) > 0 {
				fmt.Fprintf(w, "    aux: %s\n", strings.Join(inst.ActiveAux, ", "))
			}
			for _, p := range inst.ParallelTasks {
				fmt.Fprintf(w, "    parallel: %s (%s)\n", p.Task, p.Status)
			}
			for _, name := range sortedKeys(inst.Descriptions) {
				fmt.Fprintf(w, "    %s: %s\n", name, inst.Descriptions[name])
			}
		}
	}

	if len(snap.Scheduler.Blackboard) > 0 {
		fmt.Fprintln(w)
		FormatValuesTable(w, snap.Scheduler.Blackboard)
	}
}

// FormatValuesTable writes blackboard values sorted by key name.
// Returns the number of keys formatted.
func FormatValuesTable(w io.Writer, values map[string]string) int {
	if len(values) == 0 {
		fmt.Fprintln(w, "Blackboard is empty")
		return 0
	}

	fmt.Fprintf(w, "%-20s %s\n", "KEY", "VALUE")
	fmt.Fprintf(w, "%-20s %s\n", "--------------------", "----------------------------------------")
	for _, key := range sortedKeys(values) {
		fmt.Fprintf(w, "%-20s %s\n", truncate(key, 20), formatValue(values[key]))
	}

	countMsg := "key"
	if len(values) != 1 {
		countMsg = "keys"
	}
	fmt.Fprintf(w, "\n%d %s\n", len(values), countMsg)
	return len(values)
}

// FormatJSON writes v as pretty-printed JSON.
func FormatJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)
	return nil
}

// FormatValuesJSONL writes one {"key","value"} object per line, sorted by key.
func FormatValuesJSONL(w io.Writer, values map[string]string) error {
	for _, key := range sortedKeys(values) {
		data, err := json.Marshal(struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}{key, values[key]})
		if err != nil {
			return fmt.Errorf("failed to marshal value to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// formatValue truncates a value to its first line with max 40 characters.
// Empty values return "-".
func formatValue(value string) string {
	if value == "" {
		return "-"
	}

	var firstLine string
	for _, line := range strings.Split(value, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}
	if firstLine == "" {
		return "-"
	}
	return truncate(firstLine, 40)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatTimestamp formats Unix timestamp in milliseconds as relative time
// like "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
