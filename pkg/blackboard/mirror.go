package blackboard

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Mirror copies changed blackboard values into Redis.
//
// The mirror registers itself as an observer of every key and remembers which
// keys changed. Flush writes those keys to the values hash and publishes one
// ChangeEvent per key. Like the Instance it observes, a Mirror belongs to the
// goroutine that ticks the agent.
type Mirror struct {
	client   *Client
	instance *Instance
	runID    string

	pending map[KeyID]struct{}
}

// NewMirror attaches a mirror to instance. Every key starts out pending so
// the first Flush writes the full blackboard.
func NewMirror(client *Client, instance *Instance, runID string) *Mirror {
	m := &Mirror{
		client:   client,
		instance: instance,
		runID:    runID,
		pending:  make(map[KeyID]struct{}, instance.NumKeys()),
	}

	for id := 0; id < instance.NumKeys(); id++ {
		key := KeyID(id)
		m.pending[key] = struct{}{}
		instance.RegisterObserver(key, m, m.onValueChanged)
	}
	return m
}

func (m *Mirror) onValueChanged(_ *Instance, key KeyID) NotifyResult {
	m.pending[key] = struct{}{}
	return ContinueObserving
}

// Pending returns the number of keys waiting for the next Flush.
func (m *Mirror) Pending() int {
	return len(m.pending)
}

// Flush writes pending keys to Redis and publishes their change events.
// On failure the keys stay pending and are retried by the next Flush.
func (m *Mirror) Flush(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}

	ids := make([]KeyID, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	hash := ValuesToHash(m.instance, ids)
	if err := m.client.WriteValues(ctx, hash); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	events := make([]*ChangeEvent, 0, len(hash))
	for _, id := range ids {
		k, _ := m.instance.Key(id)
		text, ok := hash[k.Name]
		if !ok {
			continue
		}
		events = append(events, &ChangeEvent{
			RunID:       m.runID,
			Agent:       m.client.AgentName(),
			Key:         k.Name,
			Type:        k.Type.String(),
			Value:       text.(string),
			TimestampMs: now,
		})
	}
	if err := m.client.PublishChanges(ctx, events); err != nil {
		return err
	}

	m.pending = make(map[KeyID]struct{})
	return nil
}

// Restore loads previously mirrored values into the instance.
// A missing hash is not an error: the instance keeps its defaults.
func (m *Mirror) Restore(ctx context.Context) error {
	values, err := m.client.ReadValues(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := ApplyHash(m.instance, values); err != nil {
		return fmt.Errorf("failed to restore blackboard: %w", err)
	}
	return nil
}

// Detach stops observing the instance.
func (m *Mirror) Detach() {
	m.instance.UnregisterObserversFrom(m)
}
