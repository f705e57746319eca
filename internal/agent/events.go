package agent

import (
	"context"
	"time"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

// maxBufferedEvents caps how many unpublished events survive a Redis outage.
const maxBufferedEvents = 1024

// traceSinks fans one event out to several sinks.
type traceSinks []bt.TraceSink

func (s traceSinks) OnExecutionEvent(ev bt.TraceEvent) {
	for _, sink := range s {
		sink.OnExecutionEvent(ev)
	}
}

// eventBuffer collects execution events during a tick so they can be
// published once the tick returns. Search steps are too chatty to publish.
type eventBuffer struct {
	agent   string
	runID   string
	limit   int
	pending []*blackboard.ExecutionEvent
	dropped int
}

func newEventBuffer(agent, runID string, limit int) *eventBuffer {
	return &eventBuffer{agent: agent, runID: runID, limit: limit}
}

func (b *eventBuffer) OnExecutionEvent(ev bt.TraceEvent) {
	if ev.Kind == bt.TraceSearchStep {
		return
	}
	if len(b.pending) >= b.limit {
		b.pending = b.pending[1:]
		b.dropped++
	}
	b.pending = append(b.pending, &blackboard.ExecutionEvent{
		RunID:       b.runID,
		Agent:       b.agent,
		Kind:        string(ev.Kind),
		Tree:        ev.Tree,
		Node:        ev.Node,
		Instance:    ev.Instance,
		Execution:   ev.Execution,
		Result:      ev.Result.String(),
		Detail:      ev.Detail,
		TimestampMs: time.Now().UnixMilli(),
	})
}

func (b *eventBuffer) len() int { return len(b.pending) }

// publish sends buffered events in order. Events that fail to publish stay
// buffered for the next call.
func (b *eventBuffer) publish(ctx context.Context, client *blackboard.Client) error {
	for len(b.pending) > 0 {
		if err := client.PublishExecutionEvent(ctx, b.pending[0]); err != nil {
			return err
		}
		b.pending = b.pending[1:]
	}
	b.pending = nil
	return nil
}
