// Package testutil provides deterministic test doubles: a fixed
// clock, an in-memory proposal store, and a scriptable transport.
package testutil

import (
	"sync"
	"time"

	"github.com/steelbid/followup/internal/proposal"
)

// FixedClock reports a settable calendar date.
//
// Thread-safe so it can back concurrent subtests.
type FixedClock struct {
	mu    sync.Mutex
	today time.Time
}

// NewFixedClock creates a clock pinned to the given date.
func NewFixedClock(today time.Time) *FixedClock {
	return &FixedClock{today: proposal.Date(today)}
}

// Today returns the pinned date.
func (c *FixedClock) Today() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.today
}

// Advance moves the clock forward by whole days.
func (c *FixedClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = c.today.AddDate(0, 0, days)
}
