// internal/clock/clock.go
package clock

import "time"

// Clock supplies the current time. Everything that stamps rows takes one so tests can pin it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func New() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
