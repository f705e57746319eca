package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// deviationSeparators split a "value±deviation" specification.
var deviationSeparators = []string{"±", "+-"}

// Seconds parses a duration specification into seconds.
// Supports two formats:
//   - Go duration format: "5s", "250ms", "1m30s"
//   - Bare numbers, read as seconds: "1.5", "10"
//
// Negative durations are rejected.
func Seconds(spec string) (float64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty duration specification")
	}

	if v, err := strconv.ParseFloat(spec, 64); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("duration cannot be negative: %s", spec)
		}
		return v, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s (use a duration like '2s' or '250ms', or seconds like '1.5')", spec)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", spec)
	}
	return d.Seconds(), nil
}

// SecondsWithDeviation parses "value" or "value±deviation" (also written
// "value+-deviation") into seconds. The deviation must not exceed the value.
func SecondsWithDeviation(spec string) (value, deviation float64, err error) {
	base, dev := spec, ""
	for _, sep := range deviationSeparators {
		if i := strings.Index(spec, sep); i >= 0 {
			base, dev = spec[:i], spec[i+len(sep):]
			break
		}
	}

	value, err = Seconds(base)
	if err != nil {
		return 0, 0, err
	}
	if dev == "" {
		return value, 0, nil
	}

	deviation, err = Seconds(dev)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid deviation: %w", err)
	}
	if deviation > value {
		return 0, 0, fmt.Errorf("deviation %s exceeds duration %s", strings.TrimSpace(dev), strings.TrimSpace(base))
	}
	return value, deviation, nil
}

// Duration converts a specification to a time.Duration, for wall-clock uses
// such as the agent tick loop.
func Duration(spec string) (time.Duration, error) {
	s, err := Seconds(spec)
	if err != nil {
		return 0, err
	}
	return time.Duration(s * float64(time.Second)), nil
}
