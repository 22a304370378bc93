// Package histogram records durations as a distribution over the bounded
// set of values a clamp profile can produce.
package histogram

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethpandaops/rollstat/internal/clamp"
)

// Bucket is the number of observations that clamped to Value.
type Bucket struct {
	Value int64 `json:"value"`
	Count int64 `json:"count"`
}

// Distribution is a point-in-time copy of a Histogram. Buckets are sorted
// ascending by Value and never contain a zero Count.
type Distribution struct {
	Count   int64    `json:"count"`
	Buckets []Bucket `json:"buckets"`
}

// Min returns the smallest observed value, or 0 when empty.
func (d Distribution) Min() int64 {
	if len(d.Buckets) == 0 {
		return 0
	}

	return d.Buckets[0].Value
}

// Max returns the largest observed value, or 0 when empty.
func (d Distribution) Max() int64 {
	if len(d.Buckets) == 0 {
		return 0
	}

	return d.Buckets[len(d.Buckets)-1].Value
}

// Percentile returns the smallest value v such that at least p percent of
// observations are <= v. p is clamped to [0, 100]. An empty distribution
// returns 0.
func (d Distribution) Percentile(p float64) int64 {
	if d.Count == 0 || len(d.Buckets) == 0 {
		return 0
	}

	p = math.Max(0, math.Min(100, p))

	rank := int64(math.Ceil(p / 100 * float64(d.Count)))
	if rank < 1 {
		rank = 1
	}

	var cumulative int64

	for _, b := range d.Buckets {
		cumulative += b.Count
		if cumulative >= rank {
			return b.Value
		}
	}

	return d.Buckets[len(d.Buckets)-1].Value
}

// Histogram counts clamped durations. Observe is safe for concurrent use;
// after the first observation of a value only an atomic add is needed.
type Histogram struct {
	clamp *clamp.DurationClamp

	mu     sync.RWMutex
	counts map[int64]*atomic.Int64

	total atomic.Int64
}

// New creates a Histogram keyed by the values dc produces.
func New(dc *clamp.DurationClamp) *Histogram {
	return &Histogram{
		clamp:  dc,
		counts: make(map[int64]*atomic.Int64, 64),
	}
}

// Observe clamps a duration in ticks and counts it. It returns the
// clamped value in microseconds.
func (h *Histogram) Observe(ticks int64) (int64, error) {
	value, err := h.clamp.Clamp(ticks)
	if err != nil {
		return 0, fmt.Errorf("clamping duration: %w", err)
	}

	h.counter(value).Add(1)
	h.total.Add(1)

	return value, nil
}

func (h *Histogram) counter(value int64) *atomic.Int64 {
	h.mu.RLock()
	c, ok := h.counts[value]
	h.mu.RUnlock()

	if ok {
		return c
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok = h.counts[value]; ok {
		return c
	}

	c = &atomic.Int64{}
	h.counts[value] = c

	return c
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	return h.total.Load()
}

// Keys returns the number of distinct values observed so far. It is
// bounded by the clamp profile's distinct value count plus one, as the
// profile minimum is itself a possible value.
func (h *Histogram) Keys() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.counts)
}

// Percentile is shorthand for Snapshot().Percentile(p).
func (h *Histogram) Percentile(p float64) int64 {
	return h.Snapshot().Percentile(p)
}

// Snapshot copies the current distribution.
func (h *Histogram) Snapshot() Distribution {
	h.mu.RLock()

	buckets := make([]Bucket, 0, len(h.counts))

	for value, c := range h.counts {
		if n := c.Load(); n > 0 {
			buckets = append(buckets, Bucket{Value: value, Count: n})
		}
	}

	h.mu.RUnlock()

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Value < buckets[j].Value
	})

	// Count is derived from the copied buckets so that it is consistent
	// with them under concurrent Observe calls.
	var total int64
	for _, b := range buckets {
		total += b.Count
	}

	return Distribution{Count: total, Buckets: buckets}
}
