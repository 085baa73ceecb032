package testutil

import (
	"sync"
	"time"

	"github.com/roach88/poolproxy/internal/ir"
)

// DeterministicClock is a settable block clock for tests and scenarios.
//
// It implements engine.Clock. Time only moves when Set or Advance is called,
// so the same scenario always sees the same block times.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now ir.Timestamp
}

// NewDeterministicClock creates a clock reading start.
func NewDeterministicClock(start ir.Timestamp) *DeterministicClock {
	return &DeterministicClock{now: start}
}

// Now returns the current block time.
func (c *DeterministicClock) Now() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed; scenarios use it
// to replay a block.
func (c *DeterministicClock) Set(t ir.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *DeterministicClock) Advance(d time.Duration) ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += ir.Timestamp(d)
	}
	return c.now
}
