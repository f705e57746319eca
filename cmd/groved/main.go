package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/grove/internal/agent"
	"github.com/dyluth/grove/internal/config"
	bt "github.com/dyluth/grove/pkg/behaviortree"
	"github.com/dyluth/grove/pkg/blackboard"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load environment variables
	rc, err := config.LoadRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 3. Start agent in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, rc)
	}()

	// 4. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Agent error: %v\n", runErr)
			os.Exit(1)
		}
	}

	fmt.Println("Agent stopped")
}

// run loads the tree definitions, connects to Redis when configured and
// ticks the agent until ctx is cancelled or a single-run tree finishes.
func run(ctx context.Context, rc *config.RuntimeConfig) error {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", rc.ConfigPath, err)
	}

	bundle, err := cfg.Build(nil)
	if err != nil {
		return fmt.Errorf("failed to build trees: %w", err)
	}

	mode, err := cfg.Agent.ExecutionMode()
	if err != nil {
		return err
	}
	tickRate := cfg.Agent.TickRate
	if rc.TickRate > 0 {
		tickRate = rc.TickRate
	}

	var client *blackboard.Client
	if rc.RedisURL != "" {
		redisOpts, err := redis.ParseURL(rc.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid GROVE_REDIS_URL: %w", err)
		}

		client, err = blackboard.NewClient(redisOpts, rc.AgentName)
		if err != nil {
			return fmt.Errorf("failed to create blackboard client: %w", err)
		}
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, rc.FlushTimeout)
		err = client.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis not accessible: %w", err)
		}
	} else {
		log.Printf("[Agent] GROVE_REDIS_URL not set, running without mirroring")
	}

	var trace bt.TraceSink
	if rc.Verbose {
		trace = bt.LogTraceSink{}
	}

	engine, err := agent.New(agent.Options{
		Name:          rc.AgentName,
		Bundle:        bundle,
		Tree:          cfg.Agent.Tree,
		Mode:          mode,
		TickRate:      tickRate,
		MaxSearches:   cfg.Agent.MaxSearchesPerTick,
		Values:        cfg.Agent.Values,
		Client:        client,
		SnapshotEvery: rc.SnapshotEvery,
		FlushTimeout:  rc.FlushTimeout,
		Restore:       client != nil,
		Trace:         trace,
		Verbose:       rc.Verbose,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Agent '%s' starting tree '%s' (%s, %.1f ticks/s)\n", rc.AgentName, cfg.Agent.Tree, mode, tickRate)

	if rc.HealthAddr != "" {
		health := agent.NewHealthServer(rc.HealthAddr, engine, client)
		if err := health.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			health.Shutdown(shutdownCtx)
		}()
	}

	return engine.Run(ctx)
}
