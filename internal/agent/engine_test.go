package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/internal/config"
	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

const workerConfig = `version: "1.0"
blackboards:
  Worker:
    keys:
      - {name: Done, type: bool}
      - {name: Reply, type: string}
      - {name: Attempts, type: int}
trees:
  main:
    blackboard: Worker
    root:
      composite: sequence
      children:
        - task: wait_for_message
          name: AwaitReply
          params: {type: path_found, payload_key: Reply}
        - task: set_value
          name: MarkDone
          params: {key: Done, value: "true"}
  idle:
    root:
      composite: selector
      children:
        - task: wait
          params: {duration: 10s}
agent:
  tree: main
`

func testBundle(t *testing.T) *config.Bundle {
	t.Helper()
	cfg, err := config.Parse([]byte(workerConfig))
	require.NoError(t, err)
	bundle, err := cfg.Build(nil)
	require.NoError(t, err)
	return bundle
}

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T, agent string) (*blackboard.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, agent)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNew_Errors(t *testing.T) {
	bundle := testBundle(t)

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "missing bundle", opts: Options{Name: "w", Tree: "main"}, wantErr: "requires a tree bundle"},
		{name: "missing name", opts: Options{Bundle: bundle, Tree: "main"}, wantErr: "agent name cannot be empty"},
		{name: "unknown tree", opts: Options{Name: "w", Bundle: bundle, Tree: "ghost"}, wantErr: "failed to instantiate tree 'ghost'"},
		{name: "unknown value key", opts: Options{Name: "w", Bundle: bundle, Tree: "main", Values: map[string]string{"Nope": "1"}}, wantErr: "value for 'Nope'"},
		{name: "values without blackboard", opts: Options{Name: "w", Bundle: bundle, Tree: "idle", Values: map[string]string{"Done": "true"}}, wantErr: "no blackboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngine_LocalSteps(t *testing.T) {
	e, err := New(Options{
		Name:   "worker",
		Bundle: testBundle(t),
		Tree:   "main",
		Mode:   bt.SingleRun,
		Values: map[string]string{"Attempts": "2"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.RunID())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Step(ctx, 0.1))

	assert.Equal(t, "AwaitReply", e.Scheduler().ActiveNode().Name())
	assert.Equal(t, 1, e.Scheduler().MessageObserverCount())

	st := e.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "main", st.Tree)
	assert.Equal(t, "AwaitReply", st.ActiveNode)
	assert.Equal(t, int64(1), st.Ticks)

	e.SendMessage(bt.Message{Type: "path_found", Success: true, Payload: "north"})
	for i := 0; i < 3 && e.Scheduler().IsRunning(); i++ {
		require.NoError(t, e.Step(ctx, 0.1))
	}

	bb := e.Blackboard()
	done, err := bb.GetValueAsBoolByName("Done")
	require.NoError(t, err)
	assert.True(t, done)
	reply, err := bb.GetValueAsStringByName("Reply")
	require.NoError(t, err)
	assert.Equal(t, "north", reply)
	attempts, err := bb.GetValueAsIntByName("Attempts")
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts)

	assert.False(t, e.Scheduler().IsRunning())
	assert.False(t, e.Status().Running)
}

func TestEngine_PublishesToRedis(t *testing.T) {
	client, mr := setupTestClient(t, "worker")
	ctx := context.Background()

	sub, err := client.SubscribeExecutionEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	e, err := New(Options{
		Name:          "worker",
		Bundle:        testBundle(t),
		Tree:          "main",
		Mode:          bt.Looped,
		Client:        client,
		SnapshotEvery: 1,
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Step(ctx, 0.1))

	t.Run("blackboard values are mirrored", func(t *testing.T) {
		assert.Equal(t, "false", mr.HGet(blackboard.ValuesKey("worker"), "Done"))
		assert.Equal(t, "0", mr.HGet(blackboard.ValuesKey("worker"), "Attempts"))
	})

	t.Run("snapshot is written", func(t *testing.T) {
		data, err := client.ReadSnapshot(ctx)
		require.NoError(t, err)

		var snap Snapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		assert.Equal(t, "worker", snap.Agent)
		assert.Equal(t, e.RunID(), snap.RunID)
		assert.Equal(t, int64(1), snap.Ticks)
		assert.True(t, snap.Scheduler.Running)
		require.Len(t, snap.Scheduler.Instances, 1)
		assert.Equal(t, "AwaitReply", snap.Scheduler.Instances[0].ActiveNode)
	})

	t.Run("execution events are published", func(t *testing.T) {
		kinds := map[string]bool{}
		timeout := time.After(2 * time.Second)
		for !kinds[string(bt.TraceTaskExecuted)] {
			select {
			case ev := <-sub.Events():
				assert.Equal(t, e.RunID(), ev.RunID)
				assert.NotEqual(t, string(bt.TraceSearchStep), ev.Kind)
				kinds[ev.Kind] = true
			case <-timeout:
				t.Fatalf("timed out waiting for task_executed, got %v", kinds)
			}
		}
		assert.True(t, kinds[string(bt.TraceTreeStarted)])
	})
}

func TestEngine_RestoreFromRedis(t *testing.T) {
	client, mr := setupTestClient(t, "worker")
	mr.HSet(blackboard.ValuesKey("worker"), "Attempts", "7")
	mr.HSet(blackboard.ValuesKey("worker"), "Reply", "cached")

	e, err := New(Options{
		Name:    "worker",
		Bundle:  testBundle(t),
		Tree:    "main",
		Client:  client,
		Restore: true,
		Values:  map[string]string{"Attempts": "1"},
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	attempts, err := e.Blackboard().GetValueAsIntByName("Attempts")
	require.NoError(t, err)
	assert.Equal(t, int32(7), attempts)
	reply, err := e.Blackboard().GetValueAsStringByName("Reply")
	require.NoError(t, err)
	assert.Equal(t, "cached", reply)
}

func TestEngine_RunForwardsMessages(t *testing.T) {
	client, mr := setupTestClient(t, "worker")

	e, err := New(Options{
		Name:          "worker",
		Bundle:        testBundle(t),
		Tree:          "main",
		Mode:          bt.SingleRun,
		TickRate:      100,
		Client:        client,
		SnapshotEvery: 5,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// The subscription may not be live yet, so keep sending until the
	// single-run tree finishes.
	var runErr error
	require.Eventually(t, func() bool {
		_ = client.PublishMessage(context.Background(), &blackboard.AgentMessage{
			Type:    "path_found",
			Success: true,
			Payload: "east",
		})
		select {
		case runErr = <-done:
			return true
		default:
			return false
		}
	}, 4*time.Second, 20*time.Millisecond)
	require.NoError(t, runErr)

	assert.Equal(t, "true", mr.HGet(blackboard.ValuesKey("worker"), "Done"))
	assert.Equal(t, "east", mr.HGet(blackboard.ValuesKey("worker"), "Reply"))

	data, err := client.ReadSnapshot(context.Background())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.False(t, snap.Scheduler.Running)
	assert.False(t, e.Status().Running)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, err := New(Options{
		Name:     "idler",
		Bundle:   testBundle(t),
		Tree:     "idle",
		Mode:     bt.Looped,
		TickRate: 200,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.Status().Ticks >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, e.Status().Running)
}
