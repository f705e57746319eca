package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-agent")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-agent", client.AgentName())
	})

	t.Run("rejects empty agent name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "agent name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestValues(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("missing hash is not found", func(t *testing.T) {
		_, err := client.ReadValues(ctx)
		assert.True(t, IsNotFound(err))
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, client.WriteValues(ctx, map[string]interface{}{"Ammo": "3", "Alert": "true"}))

		values, err := client.ReadValues(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Ammo": "3", "Alert": "true"}, values)
		assert.Equal(t, "3", mr.HGet("grove:test-agent:blackboard", "Ammo"))
	})

	t.Run("empty write is a no-op", func(t *testing.T) {
		assert.NoError(t, client.WriteValues(ctx, nil))
	})
}

func TestSnapshot(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.ReadSnapshot(ctx)
	assert.True(t, IsNotFound(err))

	require.NoError(t, client.WriteSnapshot(ctx, []byte(`{"running":true}`)))
	data, err := client.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":true}`, string(data))
}

func TestSubscribeChanges(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("receives published changes", func(t *testing.T) {
		sub, err := client.SubscribeChanges(ctx)
		require.NoError(t, err)
		defer sub.Close()

		ev := &ChangeEvent{RunID: uuid.New().String(), Agent: "test-agent", Key: "Ammo", Type: "int", Value: "3"}
		require.NoError(t, client.PublishChanges(ctx, []*ChangeEvent{ev}))

		select {
		case received := <-sub.Events():
			assert.Equal(t, "Ammo", received.Key)
			assert.Equal(t, "3", received.Value)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		err := client.PublishChanges(ctx, []*ChangeEvent{{RunID: "bad"}})
		assert.Error(t, err)
	})

	t.Run("cleanup on Close", func(t *testing.T) {
		sub, err := client.SubscribeChanges(ctx)
		require.NoError(t, err)

		assert.NoError(t, sub.Close())
		// Calling Close again should be safe
		assert.NoError(t, sub.Close())
	})

	t.Run("cleanup on context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)

		sub, err := client.SubscribeChanges(cancelCtx)
		require.NoError(t, err)

		cancel()

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok, "channel should be closed")
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for channel close")
		}
	})
}

func TestSubscribeExecutionEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeExecutionEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	ev := &ExecutionEvent{RunID: uuid.New().String(), Agent: "test-agent", Kind: "task_executed", Node: "Wait", Execution: 2}
	require.NoError(t, client.PublishExecutionEvent(ctx, ev))

	select {
	case received := <-sub.Events():
		assert.Equal(t, "task_executed", received.Kind)
		assert.Equal(t, 2, received.Execution)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribeMessages(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeMessages(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.PublishMessage(ctx, &AgentMessage{Type: "path_found", RequestID: 4, Success: true}))

	select {
	case received := <-sub.Events():
		assert.Equal(t, "path_found", received.Type)
		assert.Equal(t, uint32(4), received.RequestID)
		assert.True(t, received.Success)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscriptionErrorChannel(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeMessages(ctx)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(MessagesChannel("test-agent"), "not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "failed to unmarshal message")
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for error")
	}
}

func TestAgentNamespacing(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "agent-a")
	require.NoError(t, err)
	defer a.Close()
	c, err := NewClient(&redis.Options{Addr: mr.Addr()}, "agent-b")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, a.WriteValues(ctx, map[string]interface{}{"Ammo": "1"}))

	_, err = c.ReadValues(ctx)
	assert.True(t, IsNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(redis.Nil))
	assert.False(t, IsNotFound(assert.AnError))
	assert.False(t, IsNotFound(nil))
}

func TestListAgents(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	ctx := context.Background()
	for _, name := range []string{"scout", "guard"} {
		c, err := NewClient(&redis.Options{Addr: mr.Addr()}, name)
		require.NoError(t, err)
		require.NoError(t, c.WriteSnapshot(ctx, []byte(`{}`)))
		c.Close()
	}
	require.NoError(t, mr.Set("grove:scout:blackboard_extra", "x"))

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "cli")
	require.NoError(t, err)
	defer client.Close()

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"guard", "scout"}, agents)
}

func TestForAgent_SharesConnection(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	ctx := context.Background()
	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "cli")
	require.NoError(t, err)
	defer client.Close()

	scout := client.ForAgent("scout")
	assert.Equal(t, "scout", scout.AgentName())
	assert.Same(t, client.RedisClient(), scout.RedisClient())

	require.NoError(t, scout.WriteSnapshot(ctx, []byte(`{"agent":"scout"}`)))
	data, err := mr.Get(SnapshotKey("scout"))
	require.NoError(t, err)
	assert.Equal(t, `{"agent":"scout"}`, data)
}
