package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/pkg/blackboard"
)

func setupClient(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "scout")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestShowSnapshot(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	t.Run("missing snapshot", func(t *testing.T) {
		err := ShowSnapshot(ctx, client, OutputFormatDefault, &bytes.Buffer{})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "no snapshot found for agent 'scout'", err.Error())
	})

	data, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	require.NoError(t, client.WriteSnapshot(ctx, data))

	t.Run("table", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowSnapshot(ctx, client, OutputFormatDefault, buf))
		assert.Contains(t, buf.String(), "Agent 'scout' running tree 'main'")
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowSnapshot(ctx, client, OutputFormatJSON, buf))
		assert.Contains(t, buf.String(), `"active_node": "wait"`)
	})

	t.Run("jsonl writes blackboard values", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowSnapshot(ctx, client, OutputFormatJSONL, buf))
		assert.JSONEq(t, `{"key":"Ammo","value":"0"}`, strings.TrimSpace(buf.String()))
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		require.NoError(t, client.WriteSnapshot(ctx, []byte("nope")))
		err := ShowSnapshot(ctx, client, OutputFormatDefault, &bytes.Buffer{})
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "failed to decode snapshot")
	})
}

func TestShowValues(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	t.Run("empty blackboard", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowValues(ctx, client, OutputFormatDefault, buf))
		assert.Equal(t, "Blackboard is empty\n", buf.String())
	})

	require.NoError(t, client.WriteValues(ctx, map[string]interface{}{"Ammo": "3", "Mode": "attack"}))

	t.Run("table", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowValues(ctx, client, OutputFormatDefault, buf))
		assert.Contains(t, buf.String(), "attack")
		assert.Contains(t, buf.String(), "2 keys")
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, ShowValues(ctx, client, OutputFormatJSON, buf))
		assert.JSONEq(t, `{"Ammo":"3","Mode":"attack"}`, buf.String())
	})
}
