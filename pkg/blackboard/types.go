package blackboard

import (
	"fmt"

	"github.com/google/uuid"
)

// ChangeEvent is published for every key whose value changed during a tick.
type ChangeEvent struct {
	RunID       string `json:"run_id"`        // UUID of the agent run that produced the change
	Agent       string `json:"agent"`         // Agent name
	Key         string `json:"key"`           // Key name
	Type        string `json:"type"`          // Key type description
	Value       string `json:"value"`         // New value in canonical text form
	TimestampMs int64  `json:"timestamp_ms"`  // Unix milliseconds
}

// Validate checks that the event carries the fields subscribers rely on.
func (e *ChangeEvent) Validate() error {
	if _, err := uuid.Parse(e.RunID); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	if e.Agent == "" {
		return fmt.Errorf("agent cannot be empty")
	}
	if e.Key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}

// ExecutionEvent is the wire form of a scheduler trace event.
type ExecutionEvent struct {
	RunID       string `json:"run_id"`
	Agent       string `json:"agent"`
	Kind        string `json:"kind"`             // e.g. task_executed, task_finished, tree_finished
	Tree        string `json:"tree,omitempty"`   // Tree the node belongs to
	Node        string `json:"node,omitempty"`   // Node name
	Instance    int    `json:"instance"`         // Instance stack index
	Execution   int    `json:"execution"`        // Node execution index (-1 when not node-scoped)
	Result      string `json:"result,omitempty"` // Node result where relevant
	Detail      string `json:"detail,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Validate checks required fields.
func (e *ExecutionEvent) Validate() error {
	if _, err := uuid.Parse(e.RunID); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	if e.Agent == "" {
		return fmt.Errorf("agent cannot be empty")
	}
	if e.Kind == "" {
		return fmt.Errorf("kind cannot be empty")
	}
	return nil
}

// AgentMessage is an external event delivered to a running agent, for example
// a pathfinding result a waiting task observes.
type AgentMessage struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"request_id,omitempty"` // 0 matches any observer of Type
	Success   bool   `json:"success"`
	Payload   string `json:"payload,omitempty"`
}

// Validate checks the message type is present.
func (m *AgentMessage) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message type cannot be empty")
	}
	return nil
}
