package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Clock is a monotonic logical clock for event and receipt ordering.
//
// All events are stamped with a strictly increasing seq from Next. Ordering
// never depends on wall-clock time, so replaying the same calls produces the
// same order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// BlockTime is the simulated block timestamp, in seconds. It never moves
// backwards.
type BlockTime struct {
	mu  sync.Mutex
	now uint64
}

// NewBlockTime starts block time at start.
func NewBlockTime(start uint64) *BlockTime {
	return &BlockTime{now: start}
}

// Now returns the current block timestamp.
func (b *BlockTime) Now() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Warp jumps to t. Moving backwards is an error.
func (b *BlockTime) Warp(t uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t < b.now {
		return fmt.Errorf("block time cannot move backwards: %d < %d", t, b.now)
	}
	b.now = t
	return nil
}

// Advance moves time forward by d seconds and returns the new timestamp.
func (b *BlockTime) Advance(d uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now += d
	return b.now
}
