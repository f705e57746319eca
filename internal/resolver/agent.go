package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/grove/pkg/blackboard"
)

// ResolveAgent resolves an agent name or unique name prefix to the full name
// of an agent that has published a snapshot.
//
// An exact match always wins, so "guard" resolves to "guard" even when
// "guard-2" also exists. Otherwise exactly one agent must start with prefix.
func ResolveAgent(ctx context.Context, bbClient *blackboard.Client, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("agent name cannot be empty")
	}

	agents, err := bbClient.ListAgents(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for agent: %w", err)
	}

	var matches []string
	for _, name := range agents {
		if name == prefix {
			return name, nil
		}
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Matches: matches}
	}
}

// NotFoundError indicates no agent matched the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agents found matching '%s'", e.Prefix)
}

// AmbiguousError indicates multiple agents matched the prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous agent name '%s' matches %d agents", e.Prefix, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous prefixes.
// Lists all matching agents (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("'%s' matches %d agents:\n", err.Prefix, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the agent."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
