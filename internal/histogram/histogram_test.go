package histogram

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rollstat/internal/clamp"
)

const microsPerSecond = 1_000_000

func newTestHistogram(t *testing.T) *Histogram {
	t.Helper()

	dc, err := clamp.Default600Seconds(microsPerSecond)
	require.NoError(t, err)

	return New(dc)
}

func TestObserve_Clamps(t *testing.T) {
	h := newTestHistogram(t)

	tests := []struct {
		name  string
		ticks int64
		want  int64
	}{
		{name: "zero", ticks: 0, want: 0},
		{name: "sub 100us rounds up", ticks: 1, want: 100},
		{name: "exact multiple", ticks: 200, want: 200},
		{name: "millisecond segment", ticks: 12_345, want: 12_400},
		{name: "above maximum", ticks: 900 * microsPerSecond, want: 600 * microsPerSecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Observe(tt.ticks)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, int64(len(tests)), h.Count())
}

func TestSnapshot_SortedAndMerged(t *testing.T) {
	h := newTestHistogram(t)

	for _, ticks := range []int64{250, 50, 260, 99, 1} {
		_, err := h.Observe(ticks)
		require.NoError(t, err)
	}

	snap := h.Snapshot()

	assert.Equal(t, int64(5), snap.Count)
	assert.Equal(t, []Bucket{
		{Value: 100, Count: 3},
		{Value: 300, Count: 2},
	}, snap.Buckets)
	assert.Equal(t, int64(100), snap.Min())
	assert.Equal(t, int64(300), snap.Max())
}

func TestPercentile(t *testing.T) {
	h := newTestHistogram(t)

	// 100 observations: 100us..10_000us in 100us steps.
	for i := int64(1); i <= 100; i++ {
		_, err := h.Observe(i * 100)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(100), h.Percentile(0))
	assert.Equal(t, int64(100), h.Percentile(1))
	assert.Equal(t, int64(5_000), h.Percentile(50))
	assert.Equal(t, int64(9_000), h.Percentile(90))
	assert.Equal(t, int64(9_900), h.Percentile(99))
	assert.Equal(t, int64(10_000), h.Percentile(100))
	assert.Equal(t, int64(10_000), h.Percentile(150))
}

func TestPercentile_Empty(t *testing.T) {
	h := newTestHistogram(t)

	assert.Equal(t, int64(0), h.Percentile(50))

	snap := h.Snapshot()
	assert.Equal(t, int64(0), snap.Min())
	assert.Equal(t, int64(0), snap.Max())
	assert.Empty(t, snap.Buckets)
}

func TestKeys_Bounded(t *testing.T) {
	h := newTestHistogram(t)

	for ticks := int64(0); ticks < 700*microsPerSecond; ticks += 997 {
		_, err := h.Observe(ticks)
		require.NoError(t, err)
	}

	// The profile minimum (0) is a key of its own on top of the counted values.
	assert.LessOrEqual(t, int64(h.Keys()), h.clamp.Profile().DistinctValues()+1)
}

func TestObserve_Concurrent(t *testing.T) {
	h := newTestHistogram(t)

	const (
		goroutines = 8
		iterations = 1000
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := range goroutines {
		go func() {
			defer wg.Done()

			for i := range iterations {
				_, _ = h.Observe(int64(g*iterations + i))
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(goroutines*iterations), h.Count())
	assert.Equal(t, int64(goroutines*iterations), h.Snapshot().Count)
}
