package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
)

func TestHealthCheckEndpoint_MethodNotAllowed(t *testing.T) {
	server := NewHealthServer(":0", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthCheckResponse(t *testing.T) {
	get := func(t *testing.T, server *HealthServer) (int, HealthResponse) {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		req = req.WithContext(ctx)

		w := httptest.NewRecorder()
		server.healthCheckHandler(w, req)

		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		return w.Code, response
	}

	t.Run("healthy without redis", func(t *testing.T) {
		e, err := New(Options{Name: "local", Bundle: testBundle(t), Tree: "main", Mode: bt.Looped})
		require.NoError(t, err)
		require.NoError(t, e.Start(context.Background()))
		require.NoError(t, e.Step(context.Background(), 0.1))

		code, response := get(t, NewHealthServer(":0", e, nil))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "disabled", response.Redis)
		assert.Equal(t, "main", response.Tree)
		assert.True(t, response.Running)
		assert.Equal(t, int64(1), response.Ticks)
	})

	t.Run("healthy with redis", func(t *testing.T) {
		client, _ := setupTestClient(t, "worker")

		code, response := get(t, NewHealthServer(":0", nil, client))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "connected", response.Redis)
		assert.Empty(t, response.Error)
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		// Port 9 is the discard protocol - connections will fail immediately
		client, err := blackboard.NewClient(&redis.Options{
			Addr:         "localhost:9",
			DialTimeout:  50 * time.Millisecond,
			ReadTimeout:  50 * time.Millisecond,
			WriteTimeout: 50 * time.Millisecond,
		}, "test")
		require.NoError(t, err)
		defer client.Close()

		code, response := get(t, NewHealthServer(":0", nil, client))
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "disconnected", response.Redis)
		assert.NotEmpty(t, response.Error)
	})
}

func TestHealthServer_StartShutdown(t *testing.T) {
	server := NewHealthServer("127.0.0.1:0", nil, nil)
	require.NoError(t, server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}
