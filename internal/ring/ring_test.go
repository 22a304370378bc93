package ring

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, width int64, active int) *Ring {
	t.Helper()

	r, err := New(width, active)
	require.NoError(t, err)

	return r
}

func bufferValues(r *Ring) []int64 {
	out := make([]int64, len(r.buckets))
	for i := range r.buckets {
		out[i] = r.buckets[i].Load()
	}

	return out
}

func TestNew_InvalidParams(t *testing.T) {
	_, err := New(0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket width must be > 0")

	_, err = New(1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active buckets must be > 0")
}

func TestNew_Sizes(t *testing.T) {
	r := newTestRing(t, 10, 3)

	assert.Equal(t, int64(10), r.BucketWidth())
	assert.Equal(t, 4, r.TotalBuckets())
	assert.Equal(t, 12, r.capacity)
}

func TestRecord_RejectsNegativeTimestamp(t *testing.T) {
	r := newTestRing(t, 1, 3)

	assert.False(t, r.Record(-1, 5))
	assert.Equal(t, []int64{0, 0, 0, 0}, bufferValues(r))
}

func TestRecord_FirstRecordFlushesNothing(t *testing.T) {
	r := newTestRing(t, 1, 3)

	assert.True(t, r.Record(100, 1))
	assert.Nil(t, r.DequeueResults())
}

func TestRecord_FlushAfterAdvance(t *testing.T) {
	r := newTestRing(t, 1, 3)

	require.True(t, r.Record(10, 5))
	require.True(t, r.Record(20, 1))

	results := r.DequeueResults()
	require.Len(t, results, 7)

	assert.Equal(t, Result{Value: 5, BucketStartTicks: 10}, results[0])
	assert.Equal(t, Result{Value: 0, BucketStartTicks: 11}, results[1])
	assert.Equal(t, Result{Value: 0, BucketStartTicks: 12}, results[2])
	assert.Equal(t, Result{Value: 0, BucketStartTicks: 13}, results[3])

	// Buckets 14..16 were lost to wraparound.
	for _, res := range results[4:] {
		assert.Equal(t, ResultZero, res)
	}

	assert.Equal(t, int64(3), r.Skipped())
	assert.Nil(t, r.DequeueResults())
}

func TestRecord_IdleGapCountsAsSkipped(t *testing.T) {
	r := newTestRing(t, 10, 3)

	require.True(t, r.Record(0, 1))

	// No overload, just 100 bucket widths without a record.
	require.True(t, r.Record(1000, 1))

	results := r.DequeueResults()
	require.Len(t, results, 4+93)

	assert.Equal(t, Result{Value: 1, BucketStartTicks: 0}, results[0])

	zeros := 0
	for _, res := range results {
		if res == ResultZero {
			zeros++
		}
	}

	assert.Equal(t, 93, zeros)
	assert.Equal(t, int64(93), r.Skipped())
	assert.Zero(t, r.Dropped())
}

func TestRecord_TooOldIsRejected(t *testing.T) {
	r := newTestRing(t, 1, 3)

	require.True(t, r.Record(10, 5))
	require.True(t, r.Record(20, 1))
	r.DequeueResults()

	before := bufferValues(r)

	assert.False(t, r.Record(5, 9))
	assert.Equal(t, before, bufferValues(r))
	assert.Nil(t, r.DequeueResults())
}

func TestRecord_SameBucketAccumulates(t *testing.T) {
	r := newTestRing(t, 1, 3)

	require.True(t, r.Record(10, 3))
	require.True(t, r.Record(10, 4))
	assert.Nil(t, r.DequeueResults())

	// Head 14 puts bucket 10 outside the active window plus gap.
	require.True(t, r.Record(14, 1))

	results := r.DequeueResults()
	require.Len(t, results, 1)
	assert.Equal(t, Result{Value: 7, BucketStartTicks: 10}, results[0])
}

func TestRecord_ActiveWindow(t *testing.T) {
	r := newTestRing(t, 1, 3)

	require.True(t, r.Record(14, 1))

	// Active distance is totalBuckets - 1 - gap = 2.
	assert.True(t, r.Record(13, 1))
	assert.True(t, r.Record(12, 1))
	assert.False(t, r.Record(11, 1))
}

func TestRecord_BucketWidth(t *testing.T) {
	r := newTestRing(t, 1000, 2)

	require.True(t, r.Record(1500, 2))
	require.True(t, r.Record(1999, 3))
	require.True(t, r.Record(4000, 1))

	results := r.DequeueResults()
	require.Len(t, results, 1)
	assert.Equal(t, Result{Value: 5, BucketStartTicks: 1000}, results[0])
}

func TestRecord_QueueOverflowDrops(t *testing.T) {
	r := newTestRing(t, 1, 3)

	for ts := int64(0); ts < 20; ts++ {
		require.True(t, r.Record(ts, 1), "ts %d", ts)
	}

	// Buckets 0..15 were flushed, the queue holds 3*4 of them.
	results := r.DequeueResults()
	require.Len(t, results, 12)

	for i, res := range results {
		assert.Equal(t, Result{Value: 1, BucketStartTicks: int64(i)}, res)
	}

	assert.Equal(t, int64(4), r.Dropped())
	assert.Equal(t, int64(0), r.Skipped())
}

func TestDequeueResults_OwnedSlice(t *testing.T) {
	r := newTestRing(t, 1, 3)

	require.True(t, r.Record(10, 3))
	require.True(t, r.Record(14, 1))

	first := r.DequeueResults()
	require.Len(t, first, 1)

	first[0].Value = 999

	require.True(t, r.Record(15, 1))

	second := r.DequeueResults()
	require.Len(t, second, 1)
	assert.Equal(t, Result{Value: 0, BucketStartTicks: 11}, second[0])
}

func TestResult_Sentinels(t *testing.T) {
	assert.True(t, Empty.IsEmpty())
	assert.False(t, ResultZero.IsEmpty())
	assert.False(t, Result{Value: 3, BucketStartTicks: 0}.IsEmpty())
}

func TestRecord_ConcurrentConservesCounts(t *testing.T) {
	r := newTestRing(t, 1, 8)

	const (
		writers    = 8
		timestamps = 2000
	)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		flushed  atomic.Int64
	)

	wg.Add(writers)

	for range writers {
		go func() {
			defer wg.Done()

			for ts := int64(0); ts < timestamps; ts++ {
				if r.Record(ts, 1) {
					accepted.Add(1)
				}

				for _, res := range r.DequeueResults() {
					flushed.Add(res.Value)
				}
			}
		}()
	}

	wg.Wait()

	var remaining int64
	for _, v := range bufferValues(r) {
		remaining += v
	}

	assert.Equal(t, int64(0), r.Skipped())
	assert.Equal(t, int64(0), r.Dropped())
	assert.Equal(t, accepted.Load(), flushed.Load()+remaining)
	assert.Greater(t, flushed.Load(), int64(0))
}
