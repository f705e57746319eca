package blackboard

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by agent name so several
// agents can share one Redis server.
//
// Key pattern: grove:{agent}:{entity}
// Channel pattern: grove:{agent}:{event_type}_events

// ValuesKey returns the Redis key of the mirrored blackboard hash.
// Pattern: grove:{agent}:blackboard
func ValuesKey(agent string) string {
	return fmt.Sprintf("grove:%s:blackboard", agent)
}

// SnapshotKey returns the Redis key holding the latest debug snapshot (JSON).
// Pattern: grove:{agent}:snapshot
func SnapshotKey(agent string) string {
	return fmt.Sprintf("grove:%s:snapshot", agent)
}

// ChangeEventsChannel returns the channel carrying blackboard change events.
// Pattern: grove:{agent}:blackboard_events
func ChangeEventsChannel(agent string) string {
	return fmt.Sprintf("grove:%s:blackboard_events", agent)
}

// ExecutionEventsChannel returns the channel carrying scheduler trace events.
// Pattern: grove:{agent}:execution_events
func ExecutionEventsChannel(agent string) string {
	return fmt.Sprintf("grove:%s:execution_events", agent)
}

// MessagesChannel returns the channel an agent listens on for external messages.
// Pattern: grove:{agent}:messages
func MessagesChannel(agent string) string {
	return fmt.Sprintf("grove:%s:messages", agent)
}

// AgentFromSnapshotKey extracts the agent name from a snapshot key.
func AgentFromSnapshotKey(key string) (string, bool) {
	name := strings.TrimPrefix(key, "grove:")
	if name == key || !strings.HasSuffix(name, ":snapshot") {
		return "", false
	}
	name = strings.TrimSuffix(name, ":snapshot")
	return name, name != ""
}
