package blackboard

import (
	"testing"

	"github.com/google/uuid"
)

// TestChangeEventValidate_Valid tests that a complete change event passes validation
func TestChangeEventValidate_Valid(t *testing.T) {
	ev := &ChangeEvent{
		RunID:       uuid.New().String(),
		Agent:       "guard-1",
		Key:         "Alert",
		Type:        "bool",
		Value:       "true",
		TimestampMs: 1700000000000,
	}

	if err := ev.Validate(); err != nil {
		t.Errorf("valid change event failed validation: %v", err)
	}
}

func TestChangeEventValidate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ev   ChangeEvent
	}{
		{"bad run id", ChangeEvent{RunID: "not-a-uuid", Agent: "a", Key: "k"}},
		{"empty agent", ChangeEvent{RunID: uuid.New().String(), Key: "k"}},
		{"empty key", ChangeEvent{RunID: uuid.New().String(), Agent: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ev.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExecutionEventValidate(t *testing.T) {
	ev := &ExecutionEvent{
		RunID:     uuid.New().String(),
		Agent:     "guard-1",
		Kind:      "task_executed",
		Node:      "Wait",
		Execution: 3,
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("valid execution event failed validation: %v", err)
	}

	ev.Kind = ""
	if err := ev.Validate(); err == nil {
		t.Error("expected error for empty kind")
	}
}

func TestAgentMessageValidate(t *testing.T) {
	msg := &AgentMessage{Type: "path_found", RequestID: 7, Success: true}
	if err := msg.Validate(); err != nil {
		t.Errorf("valid message failed validation: %v", err)
	}

	msg.Type = ""
	if err := msg.Validate(); err == nil {
		t.Error("expected error for empty type")
	}
}
