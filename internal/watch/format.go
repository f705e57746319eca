package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/grove/pkg/blackboard"
)

// defaultFormatter writes one human-readable line per event.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatChange(ev *blackboard.ChangeEvent) error {
	_, err := fmt.Fprintf(f.writer, "[%s] 📝 %s = %s (%s)\n",
		formatTime(ev.TimestampMs), ev.Key, displayValue(ev.Value), ev.Type)
	return err
}

func (f *defaultFormatter) FormatExecution(ev *blackboard.ExecutionEvent) error {
	var line string
	switch ev.Kind {
	case "tree_started":
		line = fmt.Sprintf("🌳 Tree started: %s (%s)", ev.Tree, ev.Detail)
	case "tree_stopped":
		line = fmt.Sprintf("⏹️  Tree stopped: %s", ev.Tree)
	case "tree_finished":
		line = fmt.Sprintf("🏁 Tree finished: %s result=%s", ev.Tree, ev.Result)
	case "task_executed":
		line = fmt.Sprintf("▶️  Task started: %s", nodeLabel(ev))
	case "task_finished":
		line = fmt.Sprintf("%s Task finished: %s result=%s", resultIcon(ev.Result), nodeLabel(ev), ev.Result)
	case "task_aborted":
		line = fmt.Sprintf("🛑 Task aborted: %s result=%s", nodeLabel(ev), ev.Result)
	case "aux_activated":
		line = fmt.Sprintf("➕ Aux active: %s", nodeLabel(ev))
	case "aux_deactivated":
		line = fmt.Sprintf("➖ Aux inactive: %s", nodeLabel(ev))
	case "instance_pushed":
		line = fmt.Sprintf("⤵️  Subtree pushed: %s (instance %d)", ev.Tree, ev.Instance)
	case "instance_popped":
		line = fmt.Sprintf("⤴️  Subtree popped: %s (instance %d) result=%s", ev.Tree, ev.Instance, ev.Result)
	case "execution_request":
		line = fmt.Sprintf("🔁 Execution request: by=%s continue=%s at %s", nodeLabel(ev), ev.Result, ev.Detail)
	case "violation":
		line = fmt.Sprintf("⚠️  Violation: %s", ev.Detail)
	default:
		line = fmt.Sprintf("• %s: %s", ev.Kind, nodeLabel(ev))
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s\n", formatTime(ev.TimestampMs), line)
	return err
}

// jsonFormatter writes line-delimited JSON tagged with the stream name.
type jsonFormatter struct {
	encoder *json.Encoder
}

type jsonLine struct {
	Stream string      `json:"stream"`
	Event  interface{} `json:"event"`
}

func (f *jsonFormatter) FormatChange(ev *blackboard.ChangeEvent) error {
	return f.encoder.Encode(jsonLine{Stream: "change", Event: ev})
}

func (f *jsonFormatter) FormatExecution(ev *blackboard.ExecutionEvent) error {
	return f.encoder.Encode(jsonLine{Stream: "execution", Event: ev})
}

func nodeLabel(ev *blackboard.ExecutionEvent) string {
	if ev.Node == "" {
		return ev.Tree
	}
	if ev.Execution >= 0 {
		return fmt.Sprintf("%s/%s#%d", ev.Tree, ev.Node, ev.Execution)
	}
	return fmt.Sprintf("%s/%s", ev.Tree, ev.Node)
}

func resultIcon(result string) string {
	switch result {
	case "succeeded":
		return "✅"
	case "failed":
		return "❌"
	case "aborted":
		return "🛑"
	}
	return "•"
}

func displayValue(v string) string {
	if v == "" {
		return `""`
	}
	return v
}

func formatTime(timestampMs int64) string {
	if timestampMs == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(timestampMs).Format("15:04:05")
}
