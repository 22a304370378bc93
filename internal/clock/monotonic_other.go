//go:build !unix

package clock

import "time"

// Monotonic measures microseconds since process start using the
// runtime's monotonic reading.
type Monotonic struct {
	start time.Time
}

var _ Clock = Monotonic{}

var processStart = time.Now()

// NewMonotonic returns a microsecond monotonic clock.
func NewMonotonic() (Clock, error) {
	return Monotonic{start: processStart}, nil
}

// Now starts at 1 so a reading never collides with the empty timestamp.
func (m Monotonic) Now() int64 {
	return time.Since(m.start).Microseconds() + 1
}

func (Monotonic) TicksPerSecond() int64 { return MicrosPerSecond }
