// Package clamp quantizes raw values into a small, pre-validated set of
// representable values so downstream consumers only ever see a bounded
// number of distinct keys.
package clamp

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidConfiguration is returned when a Profile cannot be used.
	ErrInvalidConfiguration = errors.New("invalid clamp configuration")
	// ErrInvalidState is returned when a value matches no segment of a
	// validated Profile. It indicates a defect in the segment layout.
	ErrInvalidState = errors.New("invalid clamp state")
)

// Segment rounds every value at or above Above up to a multiple of Loss,
// until the next higher segment takes over.
type Segment struct {
	Above int64 `yaml:"above"`
	Loss  int64 `yaml:"loss"`
}

// Profile is an ordered set of segments plus the bounds every clamped
// value is forced into. A Profile is validated once, on first use, and
// must not be modified afterwards.
type Profile struct {
	segments          []Segment
	minValue          int64
	maxValue          int64
	maxDistinctValues int64

	once        sync.Once
	validateErr error
	distinct    int64
}

// NewProfile creates a Profile. Segments are copied and sorted
// descending by Above.
func NewProfile(
	segments []Segment,
	minValue, maxValue, maxDistinctValues int64,
) *Profile {
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Above > sorted[j].Above
	})

	return &Profile{
		segments:          sorted,
		minValue:          minValue,
		maxValue:          maxValue,
		maxDistinctValues: maxDistinctValues,
	}
}

// MinValue returns the lower bound of clamped values.
func (p *Profile) MinValue() int64 { return p.minValue }

// MaxValue returns the upper bound of clamped values.
func (p *Profile) MaxValue() int64 { return p.maxValue }

// MaxDistinctValues returns the cardinality budget of the profile.
func (p *Profile) MaxDistinctValues() int64 { return p.maxDistinctValues }

// Segments returns a copy of the segments, sorted descending by Above.
func (p *Profile) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)

	return out
}

// Validate checks the profile. The result is computed once and cached.
func (p *Profile) Validate() error {
	p.once.Do(func() {
		p.distinct, p.validateErr = p.validate()
	})

	return p.validateErr
}

// DistinctValues returns the number of distinct values the profile can
// produce. It returns 0 when the profile is invalid.
func (p *Profile) DistinctValues() int64 {
	if err := p.Validate(); err != nil {
		return 0
	}

	return p.distinct
}

func (p *Profile) validate() (int64, error) {
	if len(p.segments) == 0 {
		return 0, fmt.Errorf("%w: no segments", ErrInvalidConfiguration)
	}

	for _, s := range p.segments {
		if s.Loss <= 0 {
			return 0, fmt.Errorf(
				"%w: segment above %d has non-positive loss %d",
				ErrInvalidConfiguration, s.Above, s.Loss,
			)
		}
	}

	if p.maxValue < p.minValue {
		return 0, fmt.Errorf(
			"%w: max value %d is below min value %d",
			ErrInvalidConfiguration, p.maxValue, p.minValue,
		)
	}

	last := p.segments[len(p.segments)-1]

	if p.maxValue%last.Loss != 0 {
		return 0, fmt.Errorf(
			"%w: max value %d is not a multiple of %d",
			ErrInvalidConfiguration, p.maxValue, last.Loss,
		)
	}

	if p.minValue < last.Above {
		return 0, fmt.Errorf(
			"%w: min value %d is below the lowest segment (%d)",
			ErrInvalidConfiguration, p.minValue, last.Above,
		)
	}

	var (
		distinct int64
		upper    = p.maxValue
	)

	for _, s := range p.segments {
		if upper > s.Above {
			distinct += (upper - s.Above) / s.Loss
		}

		upper = s.Above
	}

	if distinct > p.maxDistinctValues {
		return 0, fmt.Errorf(
			"%w: profile produces %d distinct values, limit is %d",
			ErrInvalidConfiguration, distinct, p.maxDistinctValues,
		)
	}

	return distinct, nil
}

// Clamp bounds value into [MinValue, MaxValue] and rounds it up to the
// granularity of the segment it falls in.
func (p *Profile) Clamp(value int64) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	bounded := min(max(value, p.minValue), p.maxValue)

	for _, s := range p.segments {
		if s.Above <= bounded {
			return ceilDiv(bounded, s.Loss) * s.Loss, nil
		}
	}

	return 0, fmt.Errorf(
		"%w: value %d matches no segment", ErrInvalidState, bounded,
	)
}

// MustClamp is Clamp for profiles known to be valid. It panics on error.
func (p *Profile) MustClamp(value int64) int64 {
	v, err := p.Clamp(value)
	if err != nil {
		panic(err)
	}

	return v
}

// ceilDiv divides rounding towards positive infinity.
func ceilDiv(n, d int64) int64 {
	q := n / d
	if n%d != 0 && (n > 0) == (d > 0) {
		q++
	}

	return q
}
