package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/grove/internal/config"
	"github.com/dyluth/grove/pkg/blackboard"
)

const oneShotConfig = `version: "1.0"
blackboards:
  Flags:
    keys:
      - {name: Done, type: bool}
trees:
  main:
    blackboard: Flags
    root:
      composite: sequence
      children:
        - task: set_value
          name: MarkDone
          params: {key: Done, value: "true"}
agent:
  tree: main
  mode: single_run
  tick_rate: 50
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grove.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runtimeConfig(path string) *config.RuntimeConfig {
	return &config.RuntimeConfig{
		AgentName:     "daemon-test",
		ConfigPath:    path,
		SnapshotEvery: 1,
		FlushTimeout:  time.Second,
	}
}

func TestRun_SingleRunWithoutRedis(t *testing.T) {
	rc := runtimeConfig(writeConfig(t, oneShotConfig))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, run(ctx, rc))
}

func TestRun_MirrorsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := runtimeConfig(writeConfig(t, oneShotConfig))
	rc.RedisURL = "redis://" + mr.Addr()
	rc.HealthAddr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, rc))

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, rc.AgentName)
	require.NoError(t, err)
	defer client.Close()

	values, err := client.ReadValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, "true", values["Done"])

	_, err = client.ReadSnapshot(ctx)
	require.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *config.RuntimeConfig
		wantErr string
	}{
		{
			name: "missing config file",
			setup: func(t *testing.T) *config.RuntimeConfig {
				return runtimeConfig(filepath.Join(t.TempDir(), "missing.yml"))
			},
			wantErr: "failed to load",
		},
		{
			name: "invalid redis url",
			setup: func(t *testing.T) *config.RuntimeConfig {
				rc := runtimeConfig(writeConfig(t, oneShotConfig))
				rc.RedisURL = "http://nope"
				return rc
			},
			wantErr: "invalid GROVE_REDIS_URL",
		},
		{
			name: "redis unreachable",
			setup: func(t *testing.T) *config.RuntimeConfig {
				rc := runtimeConfig(writeConfig(t, oneShotConfig))
				rc.RedisURL = "redis://127.0.0.1:9"
				rc.FlushTimeout = 200 * time.Millisecond
				return rc
			},
			wantErr: "redis not accessible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.setup(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
