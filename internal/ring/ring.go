// Package ring implements a fixed-size circular buffer of per-bucket
// running sums indexed by timestamp / bucketWidth.
//
// Increments are lock-free. Advancing the head past completed buckets
// ("rotation") is serialized by a single mutex and flushes those buckets
// into a bounded result queue. Under overload the ring drops data rather
// than blocking or growing.
package ring

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

const (
	// GapBuckets is the number of slots kept beyond the active window so
	// writers racing a rotation still land in a slot that is not reused.
	GapBuckets = 1

	resultQueueFactor = 3
	noHead            = -1
)

// Ring is a time-bucketed ring of counters. It is safe for concurrent use.
type Ring struct {
	bucketWidth    int64
	activeBuckets  int64
	totalBuckets   int64
	activeDistance int64

	buckets []atomic.Int64

	// currentHead is the highest bucket index folded into the ring.
	currentHead atomic.Int64
	// pendingHead is the highest bucket index any writer has announced.
	pendingHead atomic.Int64
	// initialTail is the lowest bucket index ever recorded.
	initialTail atomic.Int64

	mu       sync.Mutex
	results  []Result
	queued   atomic.Int64
	capacity int

	// pendingSkips is reset by DequeueResults, skippedTotal never is.
	pendingSkips atomic.Int64
	skippedTotal atomic.Int64
	dropped      atomic.Int64
}

// New creates a Ring of activeBuckets buckets, each bucketWidth ticks wide.
func New(bucketWidth int64, activeBuckets int) (*Ring, error) {
	if bucketWidth <= 0 {
		return nil, fmt.Errorf("bucket width must be > 0, got %d", bucketWidth)
	}

	if activeBuckets < 1 {
		return nil, fmt.Errorf("active buckets must be > 0, got %d", activeBuckets)
	}

	total := int64(activeBuckets) + GapBuckets

	r := &Ring{
		bucketWidth:    bucketWidth,
		activeBuckets:  int64(activeBuckets),
		totalBuckets:   total,
		activeDistance: total - 1 - GapBuckets,
		buckets:        make([]atomic.Int64, total),
		capacity:       int(total) * resultQueueFactor,
	}

	r.results = make([]Result, 0, r.capacity)
	r.currentHead.Store(noHead)
	r.pendingHead.Store(noHead)
	r.initialTail.Store(math.MaxInt64)

	return r, nil
}

// BucketWidth returns the width of a bucket in ticks.
func (r *Ring) BucketWidth() int64 { return r.bucketWidth }

// TotalBuckets returns the number of slots, gap included.
func (r *Ring) TotalBuckets() int { return int(r.totalBuckets) }

// Record adds count to the bucket containing timestampTicks. It returns
// false when the timestamp is negative or too old to be recorded.
func (r *Ring) Record(timestampTicks, count int64) bool {
	if timestampTicks < 0 {
		return false
	}

	idx := timestampTicks / r.bucketWidth

	storeMin(&r.initialTail, idx)

	if idx > r.currentHead.Load() {
		r.advanceTo(idx)
	}

	if idx < r.currentHead.Load()-r.activeDistance ||
		idx < r.pendingHead.Load()-r.activeDistance {
		return false
	}

	r.buckets[idx%r.totalBuckets].Add(count)

	return true
}

// DequeueResults drains the flushed buckets. Buckets lost to ring
// wraparound since the last call are appended as ResultZero entries.
// Idle time also counts: a gap of N bucket widths between records
// yields about N ResultZero entries, not only overload does.
// The returned slice is owned by the caller.
func (r *Ring) DequeueResults() []Result {
	if r.queued.Load() == 0 && r.pendingSkips.Load() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	skipped := r.pendingSkips.Swap(0)
	out := make([]Result, 0, len(r.results)+int(skipped))
	out = append(out, r.results...)

	for i := int64(0); i < skipped; i++ {
		out = append(out, ResultZero)
	}

	r.results = r.results[:0]
	r.queued.Store(0)

	return out
}

// Skipped returns the total number of buckets lost to ring wraparound.
func (r *Ring) Skipped() int64 {
	return r.skippedTotal.Load()
}

// Dropped returns the total number of flushed buckets discarded because
// the result queue was full.
func (r *Ring) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Ring) advanceTo(newHead int64) {
	storeMax(&r.pendingHead, newHead)

	r.mu.Lock()
	defer r.mu.Unlock()

	head := r.currentHead.Load()
	if head >= newHead {
		return
	}

	if head == noHead {
		r.currentHead.Store(newHead)

		return
	}

	from := max(r.initialTail.Load(), head-r.totalBuckets+1)
	toExclusive := newHead - r.totalBuckets + 1

	if toExclusive > from {
		virtualCount := toExclusive - from
		localCount := min(virtualCount, r.totalBuckets)

		if lost := virtualCount - localCount; lost > 0 {
			r.pendingSkips.Add(lost)
			r.skippedTotal.Add(lost)
		}

		for b := from; b < from+localCount; b++ {
			value := r.buckets[b%r.totalBuckets].Swap(0)
			r.enqueue(Result{Value: value, BucketStartTicks: b * r.bucketWidth})

			// The slot of b is clean, so b+totalBuckets may be written.
			// Skipped buckets have no slot left, so the head jumps at the end.
			if localCount == virtualCount {
				r.currentHead.Store(min(newHead, b+r.totalBuckets))
			}
		}
	}

	r.currentHead.Store(newHead)
}

// enqueue must be called with mu held.
func (r *Ring) enqueue(res Result) {
	if len(r.results) >= r.capacity {
		r.dropped.Add(1)

		return
	}

	r.results = append(r.results, res)
	r.queued.Add(1)
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		old := v.Load()
		if n <= old {
			return
		}

		if v.CompareAndSwap(old, n) {
			return
		}
	}
}

func storeMin(v *atomic.Int64, n int64) {
	for {
		old := v.Load()
		if n >= old {
			return
		}

		if v.CompareAndSwap(old, n) {
			return
		}
	}
}
