package interval

import (
	"fmt"
	"sync/atomic"

	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/ring"
)

const (
	// Rings is the number of phase-shifted rings per interval.
	Rings = 4

	// phaseStepPercent is the offset between consecutive rings, as a
	// percentage of the interval duration.
	phaseStepPercent = 10

	// minHistorySeconds is how much wall-clock time each ring keeps
	// accepting late writes for.
	minHistorySeconds = 3
	minActiveBuckets  = 2
)

// ResultFunc receives every flushed bucket value. Calls arrive in no
// particular timestamp order, so it must only feed associative aggregates.
type ResultFunc func(value int64)

// Sampler records events into several phase-shifted rings for a single
// interval. It is safe for concurrent use.
type Sampler struct {
	interval NamedInterval
	clock    clock.Clock
	onResult ResultFunc

	rings   [Rings]*ring.Ring
	offsets [Rings]int64

	skipped atomic.Int64
}

// NewSampler creates a Sampler for interval. onResult may be nil.
func NewSampler(
	interval NamedInterval,
	clk clock.Clock,
	onResult ResultFunc,
) (*Sampler, error) {
	if interval.DurationTicks <= 0 {
		return nil, fmt.Errorf(
			"interval %q: duration must be > 0 ticks", interval.Name,
		)
	}

	if onResult == nil {
		onResult = func(int64) {}
	}

	s := &Sampler{
		interval: interval,
		clock:    clk,
		onResult: onResult,
	}

	active := ActiveBuckets(interval.DurationTicks, clk.TicksPerSecond())

	for i := range s.rings {
		r, err := ring.New(interval.DurationTicks, active)
		if err != nil {
			return nil, fmt.Errorf("interval %q: creating ring: %w", interval.Name, err)
		}

		s.rings[i] = r
		s.offsets[i] = interval.DurationTicks * int64(i) * phaseStepPercent / 100
	}

	return s, nil
}

// ActiveBuckets returns how many buckets of durationTicks are needed to
// cover minHistorySeconds, never fewer than minActiveBuckets.
func ActiveBuckets(durationTicks, ticksPerSecond int64) int {
	history := minHistorySeconds * ticksPerSecond
	n := (history + durationTicks - 1) / durationTicks

	return int(max(n, minActiveBuckets))
}

// Interval returns the sampled interval.
func (s *Sampler) Interval() NamedInterval {
	return s.interval
}

// Offsets returns the phase offset of each ring in ticks.
func (s *Sampler) Offsets() [Rings]int64 {
	return s.offsets
}

// Record adds count at timestamp to every ring and forwards any buckets
// that were completed as a result. It returns false when the timestamp
// lies more than one interval in the future, or when any ring rejected it.
func (s *Sampler) Record(timestamp, count int64) bool {
	if timestamp-s.interval.DurationTicks > s.clock.Now() {
		return false
	}

	ok := true

	for i, r := range s.rings {
		if !r.Record(timestamp+s.offsets[i], count) {
			ok = false
		}
	}

	for _, r := range s.rings {
		for _, res := range r.DequeueResults() {
			if res == ring.ResultZero {
				s.skipped.Add(1)
			}

			s.onResult(res.Value)
		}
	}

	return ok
}

// Skipped returns the number of buckets reported as lost to overload.
func (s *Sampler) Skipped() int64 {
	return s.skipped.Load()
}

// Dropped returns the number of flushed buckets discarded because a
// ring's result queue was full.
func (s *Sampler) Dropped() int64 {
	var total int64
	for _, r := range s.rings {
		total += r.Dropped()
	}

	return total
}
