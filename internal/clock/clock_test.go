package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual(t *testing.T) {
	m := NewManual(100, MicrosPerSecond)

	assert.Equal(t, int64(100), m.Now())
	assert.Equal(t, int64(MicrosPerSecond), m.TicksPerSecond())

	assert.Equal(t, int64(150), m.Advance(50))
	assert.Equal(t, int64(150), m.Now())

	m.Set(7)
	assert.Equal(t, int64(7), m.Now())
}

func TestFunc(t *testing.T) {
	var calls int64

	f := NewFunc(func() int64 {
		calls++

		return calls * 10
	}, 1000)

	assert.Equal(t, int64(10), f.Now())
	assert.Equal(t, int64(20), f.Now())
	assert.Equal(t, int64(1000), f.TicksPerSecond())
}

func TestMonotonic(t *testing.T) {
	clk, err := NewMonotonic()
	require.NoError(t, err)

	assert.Equal(t, int64(MicrosPerSecond), clk.TicksPerSecond())

	first := clk.Now()
	assert.Greater(t, first, int64(0))

	time.Sleep(5 * time.Millisecond)

	second := clk.Now()
	assert.GreaterOrEqual(t, second-first, int64(5000))
}

func TestTicksAndDuration(t *testing.T) {
	micros := NewManual(0, MicrosPerSecond)
	nanos := NewManual(0, int64(time.Second))

	tests := []struct {
		clk   Clock
		d     time.Duration
		ticks int64
	}{
		{clk: micros, d: time.Second, ticks: 1_000_000},
		{clk: micros, d: 1500 * time.Millisecond, ticks: 1_500_000},
		{clk: micros, d: 5 * time.Minute, ticks: 300_000_000},
		{clk: nanos, d: 10 * time.Second, ticks: 10_000_000_000},
		{clk: nanos, d: 3 * time.Microsecond, ticks: 3000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ticks, Ticks(tt.clk, tt.d), "Ticks(%s)", tt.d)
		assert.Equal(t, tt.d, Duration(tt.clk, tt.ticks), "Duration(%d)", tt.ticks)
	}
}
