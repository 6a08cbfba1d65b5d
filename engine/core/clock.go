package core

import "time"

type Clock struct {
	startTime time.Time
	lastTick  time.Time
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Starts the clock and resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.lastTick = c.startTime
	c.elapsed = 0
}

// Update advances the clock and returns the time since the previous Update
// (or Start). Has no effect on non-started clocks.
func (c *Clock) Update() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	now := time.Now()
	delta := now.Sub(c.lastTick)
	c.lastTick = now
	c.elapsed = now.Sub(c.startTime)
	return delta
}

// Stops the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
