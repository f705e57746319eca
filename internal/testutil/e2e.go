//go:build integration

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dyluth/grove/pkg/blackboard"
)

// E2EEnvironment represents an isolated test environment: a temporary
// directory holding grove.yml and a dedicated Redis container.
type E2EEnvironment struct {
	T          *testing.T
	TmpDir     string
	ConfigPath string
	AgentName  string
	RedisURL   string
	BBClient   *blackboard.Client
	Ctx        context.Context
}

// StartRedis starts a Redis container and returns its URL. The container is
// terminated when the test finishes.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err, "Failed to get container host")

	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err, "Failed to get container port")

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// SetupE2EEnvironment writes groveYML to a temp directory, starts Redis and
// connects a blackboard client for a uniquely named agent.
func SetupE2EEnvironment(t *testing.T, groveYML string) *E2EEnvironment {
	ctx := context.Background()
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "grove.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(groveYML), 0644), "Failed to write grove.yml")

	env := &E2EEnvironment{
		T:          t,
		TmpDir:     tmpDir,
		ConfigPath: configPath,
		AgentName:  fmt.Sprintf("test-e2e-%s", time.Now().Format("20060102-150405-000000")),
		RedisURL:   StartRedis(t),
		Ctx:        ctx,
	}

	opts, err := redis.ParseURL(env.RedisURL)
	require.NoError(t, err, "Failed to parse Redis URL")

	env.BBClient, err = blackboard.NewClient(opts, env.AgentName)
	require.NoError(t, err, "Failed to create blackboard client")

	t.Cleanup(func() {
		if env.BBClient != nil {
			env.BBClient.Close()
		}
	})

	return env
}

// NewClient connects another blackboard client for the environment's agent.
func (env *E2EEnvironment) NewClient() *blackboard.Client {
	opts, err := redis.ParseURL(env.RedisURL)
	require.NoError(env.T, err)
	client, err := blackboard.NewClient(opts, env.AgentName)
	require.NoError(env.T, err)
	env.T.Cleanup(func() { client.Close() })
	return client
}

// WaitForValue polls the mirrored blackboard until key holds want (up to 10 seconds).
func (env *E2EEnvironment) WaitForValue(key, want string) {
	env.T.Logf("Waiting for %s=%s...", key, want)

	var last string
	for i := 0; i < 100; i++ {
		values, err := env.BBClient.ReadValues(env.Ctx)
		if err == nil {
			last = values[key]
			if last == want {
				env.T.Logf("✓ %s=%s", key, want)
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	require.Fail(env.T, fmt.Sprintf("%s did not become %q within 10 seconds (last %q)", key, want, last))
}

// WaitForSnapshot polls until the agent has written a snapshot (up to 10 seconds).
func (env *E2EEnvironment) WaitForSnapshot() []byte {
	for i := 0; i < 100; i++ {
		data, err := env.BBClient.ReadSnapshot(env.Ctx)
		if err == nil {
			return data
		}
		time.Sleep(100 * time.Millisecond)
	}

	require.Fail(env.T, "Snapshot not written within 10 seconds")
	return nil
}
