package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dyluth/grove/internal/resolver"
)

// RuntimeConfig holds the daemon settings read from the environment.
type RuntimeConfig struct {
	AgentName     string        `env:"GROVE_AGENT_NAME,required,notEmpty"`
	RedisURL      string        `env:"GROVE_REDIS_URL"`
	ConfigPath    string        `env:"GROVE_CONFIG" envDefault:"grove.yml"`
	TickRate      float64       `env:"GROVE_TICK_RATE"` // Overrides agent.tick_rate when set
	HealthAddr    string        `env:"GROVE_HEALTH_ADDR" envDefault:":8080"`
	SnapshotEvery int           `env:"GROVE_SNAPSHOT_EVERY" envDefault:"10"` // Ticks between snapshot writes, 0 disables
	FlushTimeout  time.Duration `env:"GROVE_FLUSH_TIMEOUT" envDefault:"2s"`
	Verbose       bool          `env:"GROVE_VERBOSE"`
}

// LoadRuntime loads runtime configuration from environment variables.
func LoadRuntime() (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges the env tags cannot express
func (c *RuntimeConfig) Validate() error {
	if err := resolver.ValidateName(c.AgentName); err != nil {
		return fmt.Errorf("GROVE_AGENT_NAME: %w", err)
	}
	if c.TickRate < 0 {
		return fmt.Errorf("GROVE_TICK_RATE must be > 0, got %g", c.TickRate)
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("GROVE_SNAPSHOT_EVERY must be >= 0, got %d", c.SnapshotEvery)
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("GROVE_FLUSH_TIMEOUT must be > 0, got %s", c.FlushTimeout)
	}
	return nil
}
