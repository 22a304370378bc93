// Package clock provides the tick sources used to timestamp recorded
// events and the wall-clock scheduler used to pace reporting.
package clock

import "sync/atomic"

// Clock is a monotonic tick source.
type Clock interface {
	// Now returns the current tick count. It never decreases.
	Now() int64
	// TicksPerSecond returns the resolution of Now.
	TicksPerSecond() int64
}

// Func adapts a host-supplied tick function to a Clock.
type Func struct {
	now            func() int64
	ticksPerSecond int64
}

var _ Clock = (*Func)(nil)

// NewFunc wraps now, which must return ticksPerSecond ticks per second.
func NewFunc(now func() int64, ticksPerSecond int64) *Func {
	return &Func{now: now, ticksPerSecond: ticksPerSecond}
}

func (f *Func) Now() int64            { return f.now() }
func (f *Func) TicksPerSecond() int64 { return f.ticksPerSecond }

// Manual is a Clock that only moves when told to.
type Manual struct {
	ticks          atomic.Int64
	ticksPerSecond int64
}

var _ Clock = (*Manual)(nil)

// NewManual creates a Manual clock starting at start.
func NewManual(start, ticksPerSecond int64) *Manual {
	m := &Manual{ticksPerSecond: ticksPerSecond}
	m.ticks.Store(start)

	return m
}

func (m *Manual) Now() int64            { return m.ticks.Load() }
func (m *Manual) TicksPerSecond() int64 { return m.ticksPerSecond }

// Set moves the clock to ticks.
func (m *Manual) Set(ticks int64) {
	m.ticks.Store(ticks)
}

// Advance moves the clock forward by delta ticks and returns the new value.
func (m *Manual) Advance(delta int64) int64 {
	return m.ticks.Add(delta)
}
