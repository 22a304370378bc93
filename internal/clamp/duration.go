package clamp

import "fmt"

const microsPerSecond = 1_000_000

// DefaultDurationProfile covers 0 to 600 seconds in microseconds.
// Granularity goes from 0.1ms near zero to 50s near the maximum.
func DefaultDurationProfile() *Profile {
	return NewProfile(
		[]Segment{
			{Above: 0, Loss: 100},
			{Above: 15_000, Loss: 1_000},
			{Above: 150_000, Loss: 10_000},
			{Above: 1_500_000, Loss: 100_000},
			{Above: 15_000_000, Loss: 1_000_000},
			{Above: 100_000_000, Loss: 50_000_000},
		},
		0,
		600*microsPerSecond,
		760,
	)
}

// DurationClamp clamps monotonic tick counts as microsecond durations.
type DurationClamp struct {
	profile             *Profile
	ticksPerMicrosecond int64
}

// NewDurationClamp creates a DurationClamp for a clock running at
// ticksPerSecond. The clock must resolve at least one tick per microsecond.
func NewDurationClamp(
	profile *Profile,
	ticksPerSecond int64,
) (*DurationClamp, error) {
	if ticksPerSecond < microsPerSecond {
		return nil, fmt.Errorf(
			"%w: clock resolution %d ticks/s is coarser than 1µs",
			ErrInvalidConfiguration, ticksPerSecond,
		)
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return &DurationClamp{
		profile:             profile,
		ticksPerMicrosecond: ticksPerSecond / microsPerSecond,
	}, nil
}

// Default600Seconds returns a DurationClamp using DefaultDurationProfile.
func Default600Seconds(ticksPerSecond int64) (*DurationClamp, error) {
	return NewDurationClamp(DefaultDurationProfile(), ticksPerSecond)
}

// Profile returns the underlying profile.
func (d *DurationClamp) Profile() *Profile {
	return d.profile
}

// Micros converts ticks to whole microseconds, rounding up.
func (d *DurationClamp) Micros(ticks int64) int64 {
	return ceilDiv(ticks, d.ticksPerMicrosecond)
}

// Clamp converts ticks to microseconds and clamps the result.
func (d *DurationClamp) Clamp(ticks int64) (int64, error) {
	return d.profile.Clamp(d.Micros(ticks))
}
