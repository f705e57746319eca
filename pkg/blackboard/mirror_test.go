package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirror(t *testing.T) {
	ctx := context.Background()

	t.Run("first flush writes every key", func(t *testing.T) {
		client, mr := setupTestClient(t)
		b := newTestInstance(t)
		m := NewMirror(client, b, uuid.New().String())
		assert.Equal(t, b.NumKeys(), m.Pending())

		require.NoError(t, m.Flush(ctx))
		assert.Equal(t, 0, m.Pending())
		assert.Equal(t, "0", mr.HGet(ValuesKey("test-agent"), "Ammo"))
		assert.Equal(t, "invalid", mr.HGet(ValuesKey("test-agent"), "Home"))
	})

	t.Run("flushes only changed keys and publishes events", func(t *testing.T) {
		client, _ := setupTestClient(t)
		b := newTestInstance(t)
		m := NewMirror(client, b, uuid.New().String())
		require.NoError(t, m.Flush(ctx))

		sub, err := client.SubscribeChanges(ctx)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, b.SetValueAsIntByName("Ammo", 9))
		assert.Equal(t, 1, m.Pending())
		require.NoError(t, m.Flush(ctx))

		select {
		case ev := <-sub.Events():
			assert.Equal(t, "Ammo", ev.Key)
			assert.Equal(t, "9", ev.Value)
			assert.Equal(t, "int", ev.Type)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for change event")
		}
	})

	t.Run("restore applies mirrored values", func(t *testing.T) {
		client, _ := setupTestClient(t)
		require.NoError(t, client.WriteValues(ctx, map[string]interface{}{"Ammo": "12", "Alert": "true"}))

		b := newTestInstance(t)
		m := NewMirror(client, b, uuid.New().String())
		require.NoError(t, m.Restore(ctx))

		ammo, _ := b.GetValueAsIntByName("Ammo")
		assert.Equal(t, int32(12), ammo)
	})

	t.Run("restore without data keeps defaults", func(t *testing.T) {
		client, _ := setupTestClient(t)
		b := newTestInstance(t)
		m := NewMirror(client, b, uuid.New().String())
		assert.NoError(t, m.Restore(ctx))
	})

	t.Run("detach stops tracking", func(t *testing.T) {
		client, _ := setupTestClient(t)
		b := newTestInstance(t)
		m := NewMirror(client, b, uuid.New().String())
		require.NoError(t, m.Flush(ctx))

		m.Detach()
		require.NoError(t, b.SetValueAsIntByName("Ammo", 1))
		assert.Equal(t, 0, m.Pending())
	})
}
