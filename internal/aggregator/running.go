package aggregator

import (
	"math"
	"sync/atomic"
)

// running accumulates min, max, sum and count of flushed bucket values.
// The four fields are independent atomics: a concurrent reader may see a
// combination that never existed at a single instant, but each field on
// its own is exact.
type running struct {
	min   atomic.Int64
	max   atomic.Int64
	sum   atomic.Int64
	count atomic.Int64
}

func newRunning() *running {
	r := &running{}
	r.min.Store(math.MaxInt64)
	r.max.Store(math.MinInt64)

	return r
}

func (r *running) add(value int64) {
	// CAS loop for max.
	for {
		oldMax := r.max.Load()
		if value <= oldMax {
			break
		}

		if r.max.CompareAndSwap(oldMax, value) {
			break
		}
	}

	// CAS loop for min.
	for {
		oldMin := r.min.Load()
		if value >= oldMin {
			break
		}

		if r.min.CompareAndSwap(oldMin, value) {
			break
		}
	}

	r.sum.Add(value)
	r.count.Add(1)
}

type runningSnapshot struct {
	Min   int64
	Max   int64
	Sum   int64
	Count int64
}

func (r *running) snapshot() runningSnapshot {
	count := r.count.Load()
	minVal := r.min.Load()
	maxVal := r.max.Load()

	// Nothing flushed yet.
	if count == 0 {
		minVal = 0
		maxVal = 0
	}

	return runningSnapshot{
		Min:   minVal,
		Max:   maxVal,
		Sum:   r.sum.Load(),
		Count: count,
	}
}
