package testutils

import (
	"sync"
	"time"
)

// Clock supplies the current time to components. Every component reads time
// exclusively through its configured Clock, taking a single snapshot at the
// start of each operation. A nil Clock in a component Config falls back to
// time.Now.
type Clock func() time.Time

// ManualClock is a deterministic time source for tests. It only moves when
// told to, either explicitly through Set and Advance or automatically by a
// fixed step on every read.
//
// All methods are safe for concurrent use.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewManualClock creates a clock frozen at start. A zero start pins the clock
// to the Unix epoch so tests always begin from a known instant.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &ManualClock{now: start}
}

// Now returns the current simulated instant. When an auto-advance step is
// configured the clock moves forward by that step after each read, so
// consecutive reads observe strictly increasing times.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Set pins the clock to the given instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d. Negative values move it backwards.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AutoAdvance configures the step applied after every Now read. A zero step
// disables automatic movement.
func (c *ManualClock) AutoAdvance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

// Clock returns the ManualClock as a Clock function suitable for component
// configuration.
func (c *ManualClock) Clock() Clock {
	return c.Now
}
