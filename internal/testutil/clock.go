package testutil

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/rigs/internal/engine"
)

// BlockClock is a settable block timestamp for rig tests.
//
// Unlike engine.Chain, BlockClock can move backwards (Set, Reset), so one
// fixture can replay the same timeline more than once.
//
// Thread-safety: all methods are safe for concurrent use.
type BlockClock struct {
	mu    sync.Mutex
	start uint64
	now   uint64
}

// NewBlockClock creates a clock at start.
func NewBlockClock(start uint64) *BlockClock {
	return &BlockClock{start: start, now: start}
}

// Now returns the current block time.
func (c *BlockClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds and returns the new time.
func (c *BlockClock) Advance(d uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Set moves the clock to t.
func (c *BlockClock) Set(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset moves the clock back to its start.
func (c *BlockClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}

// Tx returns a transaction from sender at the current time.
func (c *BlockClock) Tx(from common.Address) engine.Tx {
	return engine.NewTx(from, c.Now())
}
