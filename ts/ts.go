// Package ts has the clock the server and admin tool hand to everything
// that needs the time.
package ts

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock wraps a clockwork.Clock so that the Now method is a little more
// convenient.
type Clock struct {
	clock clockwork.Clock
}

func NewRealClock() *Clock {
	return NewClock(clockwork.NewRealClock())
}

// NewClock wraps c, which is usually a fake in tests.
func NewClock(c clockwork.Clock) *Clock {
	return &Clock{clock: c}
}

// Now provides a timestamp truncated to the second, in UTC.  Cookie key
// validity and password expiry are stored at that precision.
func (c *Clock) Now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Second)
}

// Underlying is the wrapped clock, for code that wants sub-second times.
func (c *Clock) Underlying() clockwork.Clock {
	return c.clock
}
