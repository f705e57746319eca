package filter

import (
	"path/filepath"

	"github.com/dyluth/grove/pkg/blackboard"
)

// Criteria defines filtering criteria for streamed agent events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	KindGlob         string // Glob pattern for execution event kind, empty = no filter
	NodeGlob         string // Glob pattern for node name, empty = no filter
	KeyGlob          string // Glob pattern for blackboard key, empty = no filter
	Tree             string // Exact match on tree name, empty = no filter
}

// MatchesExecution returns true if the execution event matches all criteria.
// Key filtering applies only to change events, so a key filter rejects every
// execution event.
func (c *Criteria) MatchesExecution(ev *blackboard.ExecutionEvent) bool {
	if c.SinceTimestampMs > 0 && ev.TimestampMs < c.SinceTimestampMs {
		return false
	}
	if c.KeyGlob != "" {
		return false
	}
	if !globMatch(c.KindGlob, ev.Kind) || !globMatch(c.NodeGlob, ev.Node) {
		return false
	}
	if c.Tree != "" && ev.Tree != c.Tree {
		return false
	}
	return true
}

// MatchesChange returns true if the blackboard change matches all criteria.
// Node, kind and tree filters describe execution events and reject changes.
func (c *Criteria) MatchesChange(ev *blackboard.ChangeEvent) bool {
	if c.SinceTimestampMs > 0 && ev.TimestampMs < c.SinceTimestampMs {
		return false
	}
	if c.KindGlob != "" || c.NodeGlob != "" || c.Tree != "" {
		return false
	}
	return globMatch(c.KeyGlob, ev.Key)
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.KindGlob != "" ||
		c.NodeGlob != "" ||
		c.KeyGlob != "" ||
		c.Tree != ""
}

// Validate reports malformed glob patterns.
func (c *Criteria) Validate() error {
	for _, pattern := range []string{c.KindGlob, c.NodeGlob, c.KeyGlob} {
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return err
		}
	}
	return nil
}

func globMatch(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	matched, err := filepath.Match(pattern, value)
	return err == nil && matched
}
