package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/internal/agent"
	"github.com/dyluth/grove/internal/filter"
	"github.com/dyluth/grove/pkg/blackboard"
)

// syncBuffer lets the streaming goroutine and the test share output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupClient(t *testing.T) *blackboard.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "scout")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("default")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatDefault, f)

	f, err = ParseOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSON, f)

	_, err = ParseOutputFormat("yaml")
	assert.EqualError(t, err, "unknown format: yaml")
}

func TestDefaultFormatter_Execution(t *testing.T) {
	tests := []struct {
		name     string
		event    *blackboard.ExecutionEvent
		expected string
	}{
		{
			name:     "tree started",
			event:    &blackboard.ExecutionEvent{Kind: "tree_started", Tree: "main", Execution: 0, Detail: "looped"},
			expected: "🌳 Tree started: main (looped)",
		},
		{
			name:     "task finished successfully",
			event:    &blackboard.ExecutionEvent{Kind: "task_finished", Tree: "main", Node: "Aim", Execution: 4, Result: "succeeded"},
			expected: "✅ Task finished: main/Aim#4 result=succeeded",
		},
		{
			name:     "task failed",
			event:    &blackboard.ExecutionEvent{Kind: "task_finished", Tree: "main", Node: "Aim", Execution: 4, Result: "failed"},
			expected: "❌ Task finished: main/Aim#4 result=failed",
		},
		{
			name:     "subtree pushed",
			event:    &blackboard.ExecutionEvent{Kind: "instance_pushed", Tree: "patrol", Node: "sequence", Instance: 1},
			expected: "⤵️  Subtree pushed: patrol (instance 1)",
		},
		{
			name:     "violation without node",
			event:    &blackboard.ExecutionEvent{Kind: "violation", Execution: -1, Detail: "task finished twice"},
			expected: "⚠️  Violation: task finished twice",
		},
		{
			name:     "unknown kind",
			event:    &blackboard.ExecutionEvent{Kind: "search_step", Tree: "main", Node: "Check", Execution: -1},
			expected: "• search_step: main/Check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &defaultFormatter{writer: buf}

			require.NoError(t, formatter.FormatExecution(tt.event))
			assert.True(t, strings.Contains(buf.String(), tt.expected),
				"Expected output to contain '%s', got: %s", tt.expected, buf.String())
		})
	}
}

func TestDefaultFormatter_Change(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &defaultFormatter{writer: buf}

	require.NoError(t, formatter.FormatChange(&blackboard.ChangeEvent{Key: "Ammo", Type: "int", Value: "3"}))
	require.NoError(t, formatter.FormatChange(&blackboard.ChangeEvent{Key: "Target", Type: "string", Value: ""}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[--:--:--] 📝 Ammo = 3 (int)", lines[0])
	assert.Equal(t, `[--:--:--] 📝 Target = "" (string)`, lines[1])
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := newFormatter(OutputFormatJSON, buf)

	require.NoError(t, formatter.FormatChange(&blackboard.ChangeEvent{Key: "Ammo", Value: "2"}))
	require.NoError(t, formatter.FormatExecution(&blackboard.ExecutionEvent{Kind: "task_executed", Node: "Aim"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "change", first["stream"])
	assert.Equal(t, "Ammo", first["event"].(map[string]interface{})["key"])
	assert.Equal(t, "execution", second["stream"])
	assert.Equal(t, "Aim", second["event"].(map[string]interface{})["node"])
}

func TestStreamActivity(t *testing.T) {
	client := setupClient(t)
	runID := uuid.New().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- StreamActivity(ctx, client, "scout", OutputFormatDefault, &filter.Criteria{KindGlob: "task_*"}, out)
	}()

	// Publish until the subscriptions are live and the event comes through.
	require.Eventually(t, func() bool {
		pub := context.Background()
		_ = client.PublishChanges(pub, []*blackboard.ChangeEvent{{RunID: runID, Agent: "scout", Key: "Ammo", Type: "int", Value: "1"}})
		_ = client.PublishExecutionEvent(pub, &blackboard.ExecutionEvent{RunID: runID, Agent: "scout", Kind: "tree_started", Tree: "main"})
		_ = client.PublishExecutionEvent(pub, &blackboard.ExecutionEvent{RunID: runID, Agent: "scout", Kind: "task_executed", Tree: "main", Node: "Aim", Execution: 2})
		return strings.Contains(out.String(), "Task started: main/Aim#2")
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StreamActivity did not return after cancel")
	}

	output := out.String()
	assert.Contains(t, output, "Watching agent 'scout'")
	assert.NotContains(t, output, "Tree started")
	assert.NotContains(t, output, "Ammo")
}

func TestPollForSnapshot(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	write := func(t *testing.T, ticks int64, timestampMs int64) {
		t.Helper()
		data, err := json.Marshal(agent.Snapshot{Agent: "scout", Ticks: ticks, TimestampMs: timestampMs})
		require.NoError(t, err)
		require.NoError(t, client.WriteSnapshot(ctx, data))
	}

	t.Run("returns error on timeout when missing", func(t *testing.T) {
		_, err := PollForSnapshot(ctx, client, 0, 500*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for snapshot")
	})

	t.Run("returns snapshot when found immediately", func(t *testing.T) {
		write(t, 5, 1000)

		snap, err := PollForSnapshot(ctx, client, 0, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(5), snap.Ticks)
	})

	t.Run("waits for a newer snapshot", func(t *testing.T) {
		write(t, 5, 1000)
		go func() {
			time.Sleep(500 * time.Millisecond)
			data, _ := json.Marshal(agent.Snapshot{Agent: "scout", Ticks: 9, TimestampMs: 2000})
			client.WriteSnapshot(context.Background(), data)
		}()

		start := time.Now()
		snap, err := PollForSnapshot(ctx, client, 1000, 2*time.Second)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, int64(9), snap.Ticks)
		assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	})

	t.Run("reports corrupt snapshots", func(t *testing.T) {
		require.NoError(t, client.WriteSnapshot(ctx, []byte("{not json")))

		_, err := PollForSnapshot(ctx, client, 0, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode snapshot")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := PollForSnapshot(cctx, client, 0, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
