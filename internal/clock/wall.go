package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/ethwallclock"
	"github.com/sirupsen/logrus"
)

// boundariesPerEpoch only groups boundaries for ethwallclock's epoch
// bookkeeping; nothing here reads epochs.
const boundariesPerEpoch = 32

// BoundaryFunc is called when the wall clock crosses a boundary.
type BoundaryFunc func(boundary uint64, start time.Time)

// WallClock fires callbacks on wall-clock aligned boundaries, e.g. every
// full 10s when interval is 10s.
type WallClock interface {
	// Start begins firing boundary callbacks.
	Start(ctx context.Context) error
	// Stop terminates the clock.
	Stop() error
	// Current returns the number of the boundary period we are in.
	Current() uint64
	// BoundaryStart returns the wall-clock start of the given boundary.
	BoundaryStart(boundary uint64) time.Time
	// Interval returns the distance between boundaries.
	Interval() time.Duration
	// OnBoundary registers a callback for boundary crossings.
	OnBoundary(fn BoundaryFunc)
}

type wallClock struct {
	log       logrus.FieldLogger
	origin    time.Time
	interval  time.Duration
	wallclock *ethwallclock.EthereumBeaconChain

	mu        sync.Mutex
	callbacks []BoundaryFunc
	stopOnce  sync.Once
}

// NewWallClock creates a WallClock whose boundaries are multiples of
// interval since the Unix epoch.
func NewWallClock(
	log logrus.FieldLogger,
	interval time.Duration,
) (WallClock, error) {
	if interval < time.Millisecond {
		return nil, fmt.Errorf("interval must be >= 1ms, got %s", interval)
	}

	origin := time.Unix(0, 0).UTC()

	return &wallClock{
		log:       log.WithField("component", "wallclock"),
		origin:    origin,
		interval:  interval,
		wallclock: ethwallclock.NewEthereumBeaconChain(origin, interval, boundariesPerEpoch),
		callbacks: make([]BoundaryFunc, 0, 2),
	}, nil
}

func (c *wallClock) Start(_ context.Context) error {
	// ethwallclock invokes this in a new goroutine per boundary.
	c.wallclock.OnSlotChanged(func(slot ethwallclock.Slot) {
		n := slot.Number()
		start := slot.TimeWindow().Start()

		c.log.WithField("boundary", n).Debug("Boundary crossed")

		c.mu.Lock()
		callbacks := make([]BoundaryFunc, len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()

		for _, fn := range callbacks {
			fn(n, start)
		}
	})

	c.log.WithField("interval", c.interval).Info("Wall clock started")

	return nil
}

func (c *wallClock) Stop() error {
	c.stopOnce.Do(func() {
		if c.wallclock != nil {
			c.wallclock.Stop()
		}
	})

	return nil
}

func (c *wallClock) Current() uint64 {
	slot := c.wallclock.Slots().Current()

	return slot.Number()
}

func (c *wallClock) BoundaryStart(boundary uint64) time.Time {
	return c.origin.Add(time.Duration(boundary) * c.interval)
}

func (c *wallClock) Interval() time.Duration {
	return c.interval
}

func (c *wallClock) OnBoundary(fn BoundaryFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks = append(c.callbacks, fn)
}
