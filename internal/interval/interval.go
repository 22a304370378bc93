// Package interval samples one named rolling window through several
// phase-shifted time-bucket rings.
package interval

import (
	"fmt"
	"time"

	"github.com/ethpandaops/rollstat/internal/clock"
)

// MinDuration is the shortest configurable interval. Each ring keeps
// 3s of buckets, so a 10ms interval already needs 300 buckets per ring.
const MinDuration = 10 * time.Millisecond

// NamedInterval is a rolling window over which statistics are reported.
type NamedInterval struct {
	Name          string
	Unit          string
	DurationTicks int64
}

// String returns the interval name.
func (n NamedInterval) String() string {
	return n.Name
}

// Config is the YAML form of a NamedInterval.
type Config struct {
	Name     string        `yaml:"name"`
	Unit     string        `yaml:"unit"`
	Duration time.Duration `yaml:"duration"`
}

// Resolve converts the config to a NamedInterval measured in ticks of clk.
func (c Config) Resolve(clk clock.Clock) (NamedInterval, error) {
	if c.Name == "" {
		return NamedInterval{}, fmt.Errorf("interval name is required")
	}

	if c.Duration < MinDuration {
		return NamedInterval{}, fmt.Errorf(
			"interval %q: duration %s is below the minimum %s",
			c.Name, c.Duration, MinDuration,
		)
	}

	ticks := clock.Ticks(clk, c.Duration)
	if ticks <= 0 {
		return NamedInterval{}, fmt.Errorf(
			"interval %q: duration %s is shorter than one tick",
			c.Name, c.Duration,
		)
	}

	unit := c.Unit
	if unit == "" {
		unit = "per_" + c.Name
	}

	return NamedInterval{
		Name:          c.Name,
		Unit:          unit,
		DurationTicks: ticks,
	}, nil
}

// DefaultConfigs returns the 1s, 10s, 1m and 5m windows.
func DefaultConfigs() []Config {
	return []Config{
		{Name: "second", Unit: "per_second", Duration: time.Second},
		{Name: "10_seconds", Unit: "per_10_seconds", Duration: 10 * time.Second},
		{Name: "minute", Unit: "per_minute", Duration: time.Minute},
		{Name: "5_minutes", Unit: "per_5_minutes", Duration: 5 * time.Minute},
	}
}

// Resolve converts a list of configs, rejecting duplicate names.
func Resolve(configs []Config, clk clock.Clock) ([]NamedInterval, error) {
	out := make([]NamedInterval, 0, len(configs))
	seen := make(map[string]struct{}, len(configs))

	for _, c := range configs {
		if _, ok := seen[c.Name]; ok {
			return nil, fmt.Errorf("duplicate interval %q", c.Name)
		}

		seen[c.Name] = struct{}{}

		n, err := c.Resolve(clk)
		if err != nil {
			return nil, err
		}

		out = append(out, n)
	}

	return out, nil
}

// DefaultIntervals resolves DefaultConfigs against clk.
func DefaultIntervals(clk clock.Clock) []NamedInterval {
	out, err := Resolve(DefaultConfigs(), clk)
	if err != nil {
		// Only reachable with a clock slower than one tick per second.
		panic(err)
	}

	return out
}
