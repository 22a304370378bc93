//go:build unix

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Monotonic reads CLOCK_MONOTONIC in microseconds.
type Monotonic struct{}

var _ Clock = Monotonic{}

// NewMonotonic returns a microsecond monotonic clock.
func NewMonotonic() (Clock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return nil, fmt.Errorf("reading CLOCK_MONOTONIC: %w", err)
	}

	return Monotonic{}, nil
}

func (Monotonic) Now() int64 {
	var ts unix.Timespec

	// Availability is checked in NewMonotonic.
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)

	return ts.Nano() / 1000
}

func (Monotonic) TicksPerSecond() int64 { return MicrosPerSecond }
