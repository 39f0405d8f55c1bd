package clock

import (
	"math"
	"time"
)

const (
	// MaxDelta caps a single frame so a paused world cannot tunnel bodies on resume.
	MaxDelta = 20 * time.Millisecond
	// DayLength is one full in-game day in clock units.
	DayLength = 2400.0
)

type Clock struct {
	now func() time.Time

	prev      time.Time
	delta     time.Duration
	time      float64
	tickSpeed float64
	tick      uint64
}

func New(t, tickSpeed float64) *Clock {
	return NewWithSource(t, tickSpeed, time.Now)
}

// NewWithSource lets tests drive the clock with a fake time source.
func NewWithSource(t, tickSpeed float64, now func() time.Time) *Clock {
	c := &Clock{now: now, tickSpeed: tickSpeed}
	c.SetTime(t)
	c.prev = now()
	return c
}

// Tick advances the clock by the wall time elapsed since the previous tick.
// A clock that moves backwards is a host fault and panics.
func (c *Clock) Tick() {
	now := c.now()
	elapsed := now.Sub(c.prev)
	if elapsed < 0 {
		panic("clock: time went backwards")
	}
	c.prev = now
	if elapsed > MaxDelta {
		elapsed = MaxDelta
	}
	c.delta = elapsed
	c.time = wrap(c.time + c.tickSpeed*elapsed.Seconds())
	c.tick++
}

func (c *Clock) DeltaSecs() float64     { return c.delta.Seconds() }
func (c *Clock) DeltaMillis() int64     { return c.delta.Milliseconds() }
func (c *Clock) Time() float64          { return c.time }
func (c *Clock) TickSpeed() float64     { return c.tickSpeed }
func (c *Clock) Ticks() uint64          { return c.tick }
func (c *Clock) SetTime(t float64)      { c.time = wrap(t) }
func (c *Clock) SetTickSpeed(s float64) { c.tickSpeed = s }

func wrap(t float64) float64 {
	t = math.Mod(t, DayLength)
	if t < 0 {
		t += DayLength
	}
	return t
}
