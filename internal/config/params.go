package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/grove/internal/timespec"
)

// params reads a node's string parameters and tracks which were used, so
// misspelled parameters are reported instead of silently ignored.
type params struct {
	values map[string]string
	used   map[string]bool
}

func newParams(values map[string]string) *params {
	return &params{values: values, used: make(map[string]bool, len(values))}
}

func (p *params) lookup(name string) (string, bool) {
	p.used[name] = true
	v, ok := p.values[name]
	return v, ok
}

func (p *params) str(name, def string) string {
	if v, ok := p.lookup(name); ok {
		return v
	}
	return def
}

func (p *params) required(name string) (string, error) {
	v, ok := p.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("param '%s' is required", name)
	}
	return v, nil
}

func (p *params) seconds(name string, def float64) (float64, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	s, err := timespec.Seconds(v)
	if err != nil {
		return 0, fmt.Errorf("param '%s': %w", name, err)
	}
	return s, nil
}

func (p *params) integer(name string, def int) (int, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("param '%s': invalid integer: %s", name, v)
	}
	return n, nil
}

func (p *params) boolean(name string, def bool) (bool, error) {
	v, ok := p.lookup(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("param '%s': invalid boolean: %s", name, v)
	}
	return b, nil
}

// unused reports parameters no factory asked for.
func (p *params) unused() error {
	var extra []string
	for name := range p.values {
		if !p.used[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("unknown params: %s", strings.Join(extra, ", "))
}
