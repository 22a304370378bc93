package clock

import "time"

// MicrosPerSecond is the resolution of the Monotonic clock.
const MicrosPerSecond = 1_000_000

// Ticks converts d to ticks of c.
func Ticks(c Clock, d time.Duration) int64 {
	tps := c.TicksPerSecond()
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)

	return sec*tps + rem*tps/int64(time.Second)
}

// Duration converts ticks of c to a time.Duration.
func Duration(c Clock, ticks int64) time.Duration {
	tps := c.TicksPerSecond()

	return time.Duration(ticks/tps)*time.Second +
		time.Duration(ticks%tps)*time.Second/time.Duration(tps)
}
