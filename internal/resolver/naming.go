package resolver

import (
	"fmt"
	"regexp"
)

// MaxNameLength is the maximum length for an agent name (DNS-compatible)
const MaxNameLength = 63

// NamePattern matches valid agent names: lowercase alphanumeric with
// hyphens, not at start or end. Names never contain Redis glob characters,
// so they are safe inside key patterns.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if an agent name is valid according to DNS naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("agent name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid agent name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
