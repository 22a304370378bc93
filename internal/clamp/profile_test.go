package clamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *Profile {
	return NewProfile(
		[]Segment{
			{Above: 0, Loss: 10},
			{Above: 100, Loss: 50},
			{Above: 1000, Loss: 500},
		},
		0, 5000, 100,
	)
}

func TestValidate_Valid(t *testing.T) {
	p := testProfile()

	require.NoError(t, p.Validate())
	// (5000-1000)/500 + (1000-100)/50 + (100-0)/10
	assert.Equal(t, int64(8+18+10), p.DistinctValues())
}

func TestValidate_MaxNotMultipleOfLoss(t *testing.T) {
	p := NewProfile([]Segment{{Above: 0, Loss: 30}}, 0, 100, 1000)

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "not a multiple of 30")
}

func TestValidate_NoSegments(t *testing.T) {
	p := NewProfile(nil, 0, 100, 1000)

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestValidate_MinBelowSmallestAbove(t *testing.T) {
	p := NewProfile([]Segment{{Above: 10, Loss: 10}}, 5, 100, 1000)

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "below the lowest segment")
}

func TestValidate_TooManyDistinctValues(t *testing.T) {
	p := NewProfile([]Segment{{Above: 0, Loss: 1}}, 0, 1000, 999)

	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "1000 distinct values")
}

func TestValidate_NonPositiveLoss(t *testing.T) {
	p := NewProfile([]Segment{{Above: 0, Loss: 0}}, 0, 100, 1000)

	assert.ErrorIs(t, p.Validate(), ErrInvalidConfiguration)
}

func TestValidate_SegmentOrderIrrelevant(t *testing.T) {
	p := NewProfile(
		[]Segment{
			{Above: 1000, Loss: 500},
			{Above: 0, Loss: 10},
			{Above: 100, Loss: 50},
		},
		0, 5000, 100,
	)

	require.NoError(t, p.Validate())

	segs := p.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, int64(1000), segs[0].Above)
	assert.Equal(t, int64(0), segs[2].Above)
}

func TestClamp(t *testing.T) {
	p := testProfile()

	tests := []struct {
		in   int64
		want int64
	}{
		{in: -5, want: 0},
		{in: 0, want: 0},
		{in: 1, want: 10},
		{in: 10, want: 10},
		{in: 11, want: 20},
		{in: 99, want: 100},
		{in: 100, want: 100},
		{in: 101, want: 150},
		{in: 999, want: 1000},
		{in: 1001, want: 1500},
		{in: 4999, want: 5000},
		{in: 5000, want: 5000},
		{in: 1_000_000, want: 5000},
	}

	for _, tt := range tests {
		got, err := p.Clamp(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "clamp(%d)", tt.in)
	}
}

func TestClamp_InvalidProfile(t *testing.T) {
	p := NewProfile([]Segment{{Above: 0, Loss: 30}}, 0, 100, 1000)

	_, err := p.Clamp(10)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	assert.Panics(t, func() { p.MustClamp(10) })
}

func TestClamp_Properties(t *testing.T) {
	profiles := map[string]*Profile{
		"test":     testProfile(),
		"duration": DefaultDurationProfile(),
	}

	for name, p := range profiles {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Validate())

			step := max(p.MaxValue()/20_000, 1)
			prev := int64(-1 << 62)

			for x := p.MinValue() - step; x <= p.MaxValue()+step; x += step {
				y := p.MustClamp(x)

				// Idempotent.
				assert.Equal(t, y, p.MustClamp(y), "clamp(clamp(%d))", x)

				// Monotonic non-decreasing.
				assert.GreaterOrEqual(t, y, prev, "clamp(%d)", x)
				prev = y

				// Multiple of the segment the bounded input falls in.
				if x >= p.MinValue() && x <= p.MaxValue() {
					assert.Zero(t, y%segmentFor(p, x).Loss, "clamp(%d)=%d", x, y)
				}
			}
		})
	}
}

func segmentFor(p *Profile, x int64) Segment {
	for _, s := range p.Segments() {
		if s.Above <= x {
			return s
		}
	}

	return Segment{}
}
