// Package clock provides a time source that tests can control.
// Use Real in production and Manual in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// Real reads the system clock
type Real struct{}

// NewReal creates a system clock
func NewReal() Real {
	return Real{}
}

// Now returns time.Now()
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to
type Manual struct {
	mu      sync.Mutex
	current time.Time
}

// NewManual creates a manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

// Now returns the manual clock's current time
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set moves the clock to t
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
