package behaviortree

import (
	"encoding/json"
	"log"
	"time"
)

// TraceKind names an execution event.
type TraceKind string

const (
	TraceTreeStarted    TraceKind = "tree_started"
	TraceTreeStopped    TraceKind = "tree_stopped"
	TraceTreeFinished   TraceKind = "tree_finished"
	TraceRequest        TraceKind = "execution_request"
	TraceSearchStep     TraceKind = "search_step"
	TraceTaskExecuted   TraceKind = "task_executed"
	TraceTaskFinished   TraceKind = "task_finished"
	TraceTaskAborted    TraceKind = "task_aborted"
	TraceAuxActivated   TraceKind = "aux_activated"
	TraceAuxDeactivated TraceKind = "aux_deactivated"
	TraceInstancePushed TraceKind = "instance_pushed"
	TraceInstancePopped TraceKind = "instance_popped"
	TraceViolation      TraceKind = "violation"
)

// TraceEvent describes one scheduler decision.
type TraceEvent struct {
	Kind      TraceKind
	Tree      string
	Node      string
	Instance  int
	Execution int // -1 when the event is not about a node
	Result    NodeResult
	Detail    string
	WorldTime float64
}

// TraceSink receives execution events. Sinks are called synchronously from
// Tick and must not call back into the scheduler.
type TraceSink interface {
	OnExecutionEvent(ev TraceEvent)
}

// TraceFunc adapts a function to TraceSink.
type TraceFunc func(ev TraceEvent)

func (f TraceFunc) OnExecutionEvent(ev TraceEvent) { f(ev) }

func (s *Scheduler) emit(kind TraceKind, instance int, node Node, result NodeResult, detail string) {
	if s.opts.Trace == nil {
		return
	}
	ev := TraceEvent{
		Kind:      kind,
		Instance:  instance,
		Execution: -1,
		Result:    result,
		Detail:    detail,
		WorldTime: s.worldTime,
	}
	if node != nil {
		ev.Node = node.Name()
		ev.Execution = node.ExecutionIndex()
		if t := node.Tree(); t != nil {
			ev.Tree = t.Name
		}
	}
	s.opts.Trace.OnExecutionEvent(ev)
}

// LogTraceSink writes events as structured JSON log lines.
type LogTraceSink struct {
	// Kinds limits logging to the listed kinds. Empty logs everything
	// except search steps.
	Kinds []TraceKind
}

func (l LogTraceSink) OnExecutionEvent(ev TraceEvent) {
	if !l.wants(ev.Kind) {
		return
	}
	logEvent(string(ev.Kind), map[string]interface{}{
		"tree":       ev.Tree,
		"node":       ev.Node,
		"instance":   ev.Instance,
		"execution":  ev.Execution,
		"result":     ev.Result.String(),
		"detail":     ev.Detail,
		"world_time": ev.WorldTime,
	})
}

func (l LogTraceSink) wants(kind TraceKind) bool {
	if len(l.Kinds) == 0 {
		return kind != TraceSearchStep
	}
	for _, k := range l.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// logEvent logs a structured event as a single JSON line.
func logEvent(event string, data map[string]interface{}) {
	data["event"] = event
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Scheduler] Failed to marshal event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
