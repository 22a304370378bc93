package interval

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/rollstat/internal/clock"
)

const second = clock.MicrosPerSecond

type collector struct {
	mu     sync.Mutex
	values []int64
}

func (c *collector) add(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = append(c.values, v)
}

func (c *collector) snapshot() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int64, len(c.values))
	copy(out, c.values)

	return out
}

func newTestSampler(
	t *testing.T,
	duration int64,
	clk clock.Clock,
) (*Sampler, *collector) {
	t.Helper()

	c := &collector{}

	s, err := NewSampler(NamedInterval{
		Name:          "test",
		Unit:          "per_test",
		DurationTicks: duration,
	}, clk, c.add)
	require.NoError(t, err)

	return s, c
}

func TestActiveBuckets(t *testing.T) {
	tests := []struct {
		duration int64
		want     int
	}{
		{duration: second / 10, want: 30},
		{duration: second, want: 3},
		{duration: 2 * second, want: 2},
		{duration: 10 * second, want: 2},
		{duration: 300 * second, want: 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ActiveBuckets(tt.duration, second),
			"duration %d", tt.duration)
	}
}

func TestNewSampler_InvalidDuration(t *testing.T) {
	_, err := NewSampler(NamedInterval{Name: "bad"}, clock.NewManual(0, second), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration must be > 0 ticks")
}

func TestSampler_Offsets(t *testing.T) {
	s, _ := newTestSampler(t, second, clock.NewManual(0, second))

	assert.Equal(t, [Rings]int64{0, 100_000, 200_000, 300_000}, s.Offsets())
	assert.Equal(t, "test", s.Interval().Name)
}

func TestSampler_RejectsFutureTimestamp(t *testing.T) {
	clk := clock.NewManual(0, second)
	s, c := newTestSampler(t, second, clk)

	assert.False(t, s.Record(10*second, 5))
	assert.Empty(t, c.snapshot())

	// Rings untouched: an older timestamp is still accepted.
	assert.True(t, s.Record(0, 5))
}

func TestSampler_AcceptsOneIntervalAhead(t *testing.T) {
	clk := clock.NewManual(0, second)
	s, _ := newTestSampler(t, second, clk)

	assert.True(t, s.Record(second, 1))
	assert.False(t, s.Record(second+1, 1))
}

func TestSampler_FlushesEveryRing(t *testing.T) {
	clk := clock.NewManual(0, second)
	s, c := newTestSampler(t, second, clk)

	require.True(t, s.Record(0, 100))
	assert.Empty(t, c.snapshot())

	clk.Set(4 * second)
	require.True(t, s.Record(4*second, 100))

	assert.Equal(t, []int64{100, 100, 100, 100}, c.snapshot())
	assert.Zero(t, s.Skipped())
	assert.Zero(t, s.Dropped())
}

func TestSampler_PhaseOffsetSplitsBuckets(t *testing.T) {
	clk := clock.NewManual(0, second)
	s, c := newTestSampler(t, second, clk)

	// 850ms lands in bucket 0 for rings 0-1 and bucket 1 for rings 2-3.
	require.True(t, s.Record(850_000, 7))

	clk.Set(10 * second)
	require.True(t, s.Record(5*second, 1))

	got := c.snapshot()

	var sum int64
	for _, v := range got {
		sum += v
	}

	assert.Equal(t, int64(4*7), sum)
}

func TestSampler_ReportsSkippedBuckets(t *testing.T) {
	clk := clock.NewManual(0, second)
	s, c := newTestSampler(t, second, clk)

	require.True(t, s.Record(0, 1))

	clk.Set(100 * second)
	require.True(t, s.Record(100*second, 1))

	// Per ring: bucket 0..96 due, 4 flushed, 93 lost.
	assert.Len(t, c.snapshot(), Rings*(4+93))
	assert.Equal(t, int64(Rings*93), s.Skipped())
}

func TestSampler_LateRecordRejected(t *testing.T) {
	clk := clock.NewManual(20*second, second)
	s, _ := newTestSampler(t, second, clk)

	require.True(t, s.Record(20*second, 1))
	assert.True(t, s.Record(18*second, 1))
	assert.False(t, s.Record(10*second, 1))
}
