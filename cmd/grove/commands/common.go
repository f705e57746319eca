package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/grove/internal/config"
	"github.com/dyluth/grove/internal/printer"
	"github.com/dyluth/grove/internal/resolver"
	"github.com/dyluth/grove/pkg/blackboard"
	"github.com/redis/go-redis/v9"
)

// loadBundle loads and builds the tree definitions named by --file.
func loadBundle() (*config.GroveConfig, *config.Bundle, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, printer.Error(
				"grove.yml not found",
				fmt.Sprintf("No tree definitions at %s.", configPath),
				[]string{"Point at an existing file:\n  grove validate -f path/to/grove.yml"},
			)
		}
		return nil, nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"File": configPath},
			[]string{"Fix the configuration, then run:\n  grove validate"},
		)
	}

	bundle, err := cfg.Build(nil)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"failed to build trees",
			err.Error(),
			map[string]string{"File": configPath},
			nil,
		)
	}
	return cfg, bundle, nil
}

// requireAgent returns the --agent value or a formatted error naming the
// command that needed it.
func requireAgent(command string) (string, error) {
	if agentName == "" {
		return "", printer.Error(
			"agent name required",
			fmt.Sprintf("'grove %s' needs to know which agent to talk to.", command),
			[]string{
				fmt.Sprintf("Pass the agent name:\n  grove %s --agent <name>", command),
				"Set it once for the shell:\n  export GROVE_AGENT_NAME=<name>",
				"List agents with snapshots:\n  grove agents",
			},
		)
	}
	return agentName, nil
}

// connectBlackboard opens a blackboard client for name and checks Redis is
// reachable.
func connectBlackboard(ctx context.Context, name string) (*blackboard.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %s: %v", redisURL, err),
			[]string{"Use the form:\n  --redis redis://host:6379/0"},
		)
	}

	client, err := blackboard.NewClient(redisOpts, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create blackboard client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Error": err.Error()},
			[]string{
				"Start Redis locally:\n  docker run -d -p 6379:6379 redis:7-alpine",
				"Point at another server:\n  --redis redis://host:6379/0",
			},
		)
	}
	return client, nil
}

// targetAgent connects to the agent named by --agent. The name may be a
// unique prefix of an agent that has published a snapshot; a name matching
// nothing is used as given, since the agent may not have started yet.
func targetAgent(ctx context.Context, command string) (*blackboard.Client, string, error) {
	name, err := requireAgent(command)
	if err != nil {
		return nil, "", err
	}

	client, err := connectBlackboard(ctx, name)
	if err != nil {
		return nil, "", err
	}

	resolved, err := resolver.ResolveAgent(ctx, client, name)
	switch {
	case err == nil:
		if resolved != name {
			client = client.ForAgent(resolved)
		}
		return client, resolved, nil
	case resolver.IsNotFoundError(err):
		return client, name, nil
	case resolver.IsAmbiguousError(err):
		client.Close()
		return nil, "", printer.Error(
			"ambiguous agent name",
			resolver.FormatAmbiguousError(err.(*resolver.AmbiguousError)),
			[]string{"List agents:\n  grove agents"},
		)
	default:
		client.Close()
		return nil, "", err
	}
}
