package perf

import (
	"github.com/ethpandaops/rollstat/internal/aggregator"
)

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	Counters  []CounterSnapshot
	Durations []DurationSnapshot
	// Rejected is the number of recordings refused so far.
	Rejected int64
}

// CounterSnapshot holds one counter's totals.
type CounterSnapshot struct {
	Name string
	// Total is the sum of every count added, accepted or not.
	Total     int64
	Intervals []aggregator.IntervalStat
}

// DurationSnapshot summarizes one named duration. All values are clamped
// microseconds.
type DurationSnapshot struct {
	Name      string
	Count     int64
	MinMicros int64
	MaxMicros int64
	P50Micros int64
	P90Micros int64
	P99Micros int64
	// Throughput counts completed operations per interval.
	Throughput []aggregator.IntervalStat
}

// Counter returns the named counter, if present.
func (s Snapshot) Counter(name string) (CounterSnapshot, bool) {
	for _, c := range s.Counters {
		if c.Name == name {
			return c, true
		}
	}

	return CounterSnapshot{}, false
}

// Duration returns the named duration, if present.
func (s Snapshot) Duration(name string) (DurationSnapshot, bool) {
	for _, d := range s.Durations {
		if d.Name == name {
			return d, true
		}
	}

	return DurationSnapshot{}, false
}
