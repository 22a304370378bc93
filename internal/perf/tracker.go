// Package perf tracks named counters and durations over rolling
// intervals. A Tracker is an explicit instance owned by its host; there is
// no process-wide state.
package perf

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rollstat/internal/aggregator"
	"github.com/ethpandaops/rollstat/internal/clamp"
	"github.com/ethpandaops/rollstat/internal/clock"
	"github.com/ethpandaops/rollstat/internal/histogram"
	"github.com/ethpandaops/rollstat/internal/interval"
)

// Config configures a Tracker.
type Config struct {
	// Intervals every counter and duration is aggregated over.
	Intervals []interval.NamedInterval
	// DurationProfile clamps durations. Nil selects
	// clamp.DefaultDurationProfile.
	DurationProfile *clamp.Profile
}

// Tracker records named counters and durations. All methods are safe for
// concurrent use.
type Tracker struct {
	log       logrus.FieldLogger
	clock     clock.Clock
	intervals []interval.NamedInterval
	durations *clamp.DurationClamp

	mu       sync.RWMutex
	counters map[string]*aggregator.Aggregator
	timings  map[string]*timing

	rejected atomic.Int64
}

type timing struct {
	hist       *histogram.Histogram
	throughput *aggregator.Aggregator
}

// New creates a Tracker timestamping events with clk.
func New(log logrus.FieldLogger, clk clock.Clock, cfg Config) (*Tracker, error) {
	if len(cfg.Intervals) == 0 {
		return nil, errors.New("at least one interval is required")
	}

	profile := cfg.DurationProfile
	if profile == nil {
		profile = clamp.DefaultDurationProfile()
	}

	dc, err := clamp.NewDurationClamp(profile, clk.TicksPerSecond())
	if err != nil {
		return nil, fmt.Errorf("creating duration clamp: %w", err)
	}

	// Surface interval errors now rather than on first use.
	if _, err := aggregator.New(cfg.Intervals, clk); err != nil {
		return nil, fmt.Errorf("validating intervals: %w", err)
	}

	t := &Tracker{
		log:       log.WithField("component", "perf"),
		clock:     clk,
		intervals: append([]interval.NamedInterval(nil), cfg.Intervals...),
		durations: dc,
		counters:  make(map[string]*aggregator.Aggregator, 16),
		timings:   make(map[string]*timing, 16),
	}

	t.log.WithFields(logrus.Fields{
		"intervals":       len(t.intervals),
		"distinct_values": profile.DistinctValues(),
	}).Debug("Tracker created")

	return t, nil
}

// Clock returns the tick source used by the Tracker.
func (t *Tracker) Clock() clock.Clock {
	return t.clock
}

// Intervals returns the configured intervals.
func (t *Tracker) Intervals() []interval.NamedInterval {
	return append([]interval.NamedInterval(nil), t.intervals...)
}

// IncrementCounter adds one event to the named counter.
func (t *Tracker) IncrementCounter(name string) {
	t.AddCounter(name, 1)
}

// AddCounter adds n events to the named counter at the current time.
func (t *Tracker) AddCounter(name string, n int64) {
	if !t.counter(name).Record(t.clock.Now(), n) {
		t.rejected.Add(1)
	}
}

// RecordDuration records one operation that started at startTicks and
// ended at endTicks. The duration goes into the named histogram and the
// operation counts towards the name's throughput at endTicks.
func (t *Tracker) RecordDuration(name string, startTicks, endTicks int64) {
	if endTicks < startTicks {
		t.rejected.Add(1)

		return
	}

	tm := t.timing(name)

	if _, err := tm.hist.Observe(endTicks - startTicks); err != nil {
		t.rejected.Add(1)

		return
	}

	if !tm.throughput.Record(endTicks, 1) {
		t.rejected.Add(1)
	}
}

// Time starts timing an operation. Calling the returned function records
// its duration under name.
func (t *Tracker) Time(name string) func() {
	start := t.clock.Now()

	return func() {
		t.RecordDuration(name, start, t.clock.Now())
	}
}

// Rejected returns how many recordings were rejected by at least one
// interval, or were invalid durations.
func (t *Tracker) Rejected() int64 {
	return t.rejected.Load()
}

func (t *Tracker) counter(name string) *aggregator.Aggregator {
	t.mu.RLock()
	a, ok := t.counters[name]
	t.mu.RUnlock()

	if ok {
		return a
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok = t.counters[name]; ok {
		return a
	}

	a = t.mustAggregator()
	t.counters[name] = a

	return a
}

func (t *Tracker) timing(name string) *timing {
	t.mu.RLock()
	tm, ok := t.timings[name]
	t.mu.RUnlock()

	if ok {
		return tm
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if tm, ok = t.timings[name]; ok {
		return tm
	}

	tm = &timing{
		hist:       histogram.New(t.durations),
		throughput: t.mustAggregator(),
	}
	t.timings[name] = tm

	return tm
}

// mustAggregator creates an aggregator over intervals already validated
// by New.
func (t *Tracker) mustAggregator() *aggregator.Aggregator {
	a, err := aggregator.New(t.intervals, t.clock)
	if err != nil {
		panic(fmt.Sprintf("perf: intervals changed after validation: %v", err))
	}

	return a
}

// Snapshot copies the current state of every counter and duration,
// sorted by name.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Counters:  make([]CounterSnapshot, 0, len(t.counters)),
		Durations: make([]DurationSnapshot, 0, len(t.timings)),
		Rejected:  t.rejected.Load(),
	}

	for name, a := range t.counters {
		snap.Counters = append(snap.Counters, CounterSnapshot{
			Name:      name,
			Total:     a.RecordedTotal(),
			Intervals: a.Stats(),
		})
	}

	for name, tm := range t.timings {
		dist := tm.hist.Snapshot()

		snap.Durations = append(snap.Durations, DurationSnapshot{
			Name:       name,
			Count:      dist.Count,
			MinMicros:  dist.Min(),
			MaxMicros:  dist.Max(),
			P50Micros:  dist.Percentile(50),
			P90Micros:  dist.Percentile(90),
			P99Micros:  dist.Percentile(99),
			Throughput: tm.throughput.Stats(),
		})
	}

	sort.Slice(snap.Counters, func(i, j int) bool {
		return snap.Counters[i].Name < snap.Counters[j].Name
	})

	sort.Slice(snap.Durations, func(i, j int) bool {
		return snap.Durations[i].Name < snap.Durations[j].Name
	})

	return snap
}
