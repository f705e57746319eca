package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRuntime_Defaults(t *testing.T) {
	t.Setenv("GROVE_AGENT_NAME", "scout")

	cfg, err := LoadRuntime()
	require.NoError(t, err)
	assert.Equal(t, "scout", cfg.AgentName)
	assert.Equal(t, "grove.yml", cfg.ConfigPath)
	assert.Equal(t, ":8080", cfg.HealthAddr)
	assert.Equal(t, 10, cfg.SnapshotEvery)
	assert.Equal(t, 2*time.Second, cfg.FlushTimeout)
	assert.Zero(t, cfg.TickRate)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.Verbose)
}

func TestLoadRuntime_Overrides(t *testing.T) {
	t.Setenv("GROVE_AGENT_NAME", "scout")
	t.Setenv("GROVE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GROVE_CONFIG", "/etc/grove/grove.yml")
	t.Setenv("GROVE_TICK_RATE", "30")
	t.Setenv("GROVE_HEALTH_ADDR", "127.0.0.1:9090")
	t.Setenv("GROVE_SNAPSHOT_EVERY", "0")
	t.Setenv("GROVE_FLUSH_TIMEOUT", "500ms")
	t.Setenv("GROVE_VERBOSE", "true")

	cfg, err := LoadRuntime()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "/etc/grove/grove.yml", cfg.ConfigPath)
	assert.Equal(t, 30.0, cfg.TickRate)
	assert.Equal(t, "127.0.0.1:9090", cfg.HealthAddr)
	assert.Equal(t, 0, cfg.SnapshotEvery)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushTimeout)
	assert.True(t, cfg.Verbose)
}

func TestLoadRuntime_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "agent name required", env: map[string]string{}, wantErr: "GROVE_AGENT_NAME"},
		{name: "invalid agent name", env: map[string]string{"GROVE_AGENT_NAME": "Guard_1"}, wantErr: "GROVE_AGENT_NAME: invalid agent name"},
		{name: "invalid tick rate", env: map[string]string{"GROVE_AGENT_NAME": "a", "GROVE_TICK_RATE": "fast"}, wantErr: "parse env"},
		{name: "negative tick rate", env: map[string]string{"GROVE_AGENT_NAME": "a", "GROVE_TICK_RATE": "-5"}, wantErr: "GROVE_TICK_RATE must be > 0"},
		{name: "negative snapshot interval", env: map[string]string{"GROVE_AGENT_NAME": "a", "GROVE_SNAPSHOT_EVERY": "-1"}, wantErr: "GROVE_SNAPSHOT_EVERY must be >= 0"},
		{name: "zero flush timeout", env: map[string]string{"GROVE_AGENT_NAME": "a", "GROVE_FLUSH_TIMEOUT": "0s"}, wantErr: "GROVE_FLUSH_TIMEOUT must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GROVE_AGENT_NAME", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadRuntime()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
