// Package aggregator fans recorded events out to one sampler per
// configured interval and keeps running min/max/avg of every bucket
// value those samplers flush.
package aggregator

import (
	"fmt"
	"sync/atomic"

	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/interval"
)

// IntervalStat is a point-in-time view of one interval's statistics.
type IntervalStat struct {
	Interval interval.NamedInterval
	Min      int64
	Max      int64
	Avg      float64
	// Samples is the number of bucket values folded into Min/Max/Avg.
	Samples int64
	// Skipped counts buckets lost to ring wraparound under overload.
	Skipped int64
	// Dropped counts buckets discarded because a result queue was full.
	Dropped int64
}

// Aggregator records events into several rolling intervals at once.
// It is safe for concurrent use and lives for the lifetime of its owner.
type Aggregator struct {
	intervals []interval.NamedInterval
	samplers  []*interval.Sampler
	stats     []*running

	recorded atomic.Int64
}

// New creates an Aggregator for intervals, timestamped by clk.
func New(
	intervals []interval.NamedInterval,
	clk clock.Clock,
) (*Aggregator, error) {
	a := &Aggregator{
		intervals: make([]interval.NamedInterval, len(intervals)),
		samplers:  make([]*interval.Sampler, 0, len(intervals)),
		stats:     make([]*running, 0, len(intervals)),
	}

	copy(a.intervals, intervals)

	for _, iv := range intervals {
		stat := newRunning()

		s, err := interval.NewSampler(iv, clk, stat.add)
		if err != nil {
			return nil, fmt.Errorf("creating sampler: %w", err)
		}

		a.samplers = append(a.samplers, s)
		a.stats = append(a.stats, stat)
	}

	return a, nil
}

// Record adds count at timestamp to every interval. The grand total is
// always updated; the result is false if any interval rejected the event.
func (a *Aggregator) Record(timestamp, count int64) bool {
	a.recorded.Add(count)

	ok := true

	for _, s := range a.samplers {
		if !s.Record(timestamp, count) {
			ok = false
		}
	}

	return ok
}

// RecordedTotal returns the sum of every count passed to Record.
func (a *Aggregator) RecordedTotal() int64 {
	return a.recorded.Load()
}

// Intervals returns the configured intervals.
func (a *Aggregator) Intervals() []interval.NamedInterval {
	out := make([]interval.NamedInterval, len(a.intervals))
	copy(out, a.intervals)

	return out
}

// Stats returns the current statistics of every interval, in
// configuration order.
func (a *Aggregator) Stats() []IntervalStat {
	out := make([]IntervalStat, 0, len(a.samplers))

	for i, s := range a.samplers {
		snap := a.stats[i].snapshot()

		var avg float64
		if snap.Count > 0 {
			avg = float64(snap.Sum) / float64(snap.Count)
		}

		out = append(out, IntervalStat{
			Interval: a.intervals[i],
			Min:      snap.Min,
			Max:      snap.Max,
			Avg:      avg,
			Samples:  snap.Count,
			Skipped:  s.Skipped(),
			Dropped:  s.Dropped(),
		})
	}

	return out
}
