// Package testutil provides deterministic clock and randomness helpers
// shared by the harness and package tests.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe wall clock that only moves when told to.
// The same scenario with the same FixedClock produces byte-identical
// timestamps, which golden trace comparison depends on.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default starting instant of a FixedClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFixedClock creates a clock frozen at Epoch.
func NewFixedClock() *FixedClock {
	return &FixedClock{now: Epoch}
}

// NewFixedClockAt creates a clock frozen at the given instant.
func NewFixedClockAt(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements nav.Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given instant.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
