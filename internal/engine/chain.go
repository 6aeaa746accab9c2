package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/ir"
)

// Call is one transaction submitted to a Chain.
type Call struct {
	// Label names the call in receipts and logs (e.g. "mine", "fulfill").
	Label string

	// From is the sender.
	From common.Address

	// Value is attached native currency; nil means zero.
	Value *uint256.Int

	// Fn performs the transaction against one or more rigs.
	Fn func(tx Tx) error
}

// Result is the outcome of an executed call.
type Result struct {
	Receipt ir.Receipt
	Err     error
}

// ReceiptSink persists receipts (the store implements it).
type ReceiptSink interface {
	WriteReceipt(ctx context.Context, r ir.Receipt) error
}

// Chain is the single-writer transaction loop that hosts rigs in
// simulation, scenarios and tests.
//
// It plays the role of the hosting ledger: it stamps each call with a block
// time and a transaction id, runs calls strictly one after another, and
// writes a receipt per call.
//
// Thread-safety model:
//   - Execute: safe from any goroutine; serialized with Run
//   - Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Warp/Advance/Now: safe from any goroutine
type Chain struct {
	mu       sync.Mutex // serializes call execution
	time     *BlockTime
	seq      *Clock
	queue    *callQueue
	txIDs    TxIDGenerator
	receipts []ReceiptSink
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTxIDs sets the transaction id generator (default UUIDv7Generator).
func WithTxIDs(g TxIDGenerator) ChainOption {
	return func(c *Chain) {
		c.txIDs = g
	}
}

// WithReceiptSink adds a receipt sink.
func WithReceiptSink(s ReceiptSink) ChainOption {
	return func(c *Chain) {
		c.receipts = append(c.receipts, s)
	}
}

// NewChain creates a chain whose block time starts at start.
func NewChain(start uint64, opts ...ChainOption) *Chain {
	c := &Chain{
		time:  NewBlockTime(start),
		seq:   NewClock(),
		queue: newCallQueue(),
		txIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current block time.
func (c *Chain) Now() uint64 {
	return c.time.Now()
}

// Warp sets the block time; it cannot move backwards.
func (c *Chain) Warp(t uint64) error {
	return c.time.Warp(t)
}

// Advance moves the block time forward by d seconds.
func (c *Chain) Advance(d uint64) uint64 {
	return c.time.Advance(d)
}

// Execute runs call synchronously and returns its result.
func (c *Chain) Execute(ctx context.Context, call Call) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execute(ctx, call)
}

// Submit queues call for the Run loop. The returned channel receives
// exactly one Result. Returns false if the chain has been stopped.
func (c *Chain) Submit(call Call) (<-chan Result, bool) {
	done := make(chan Result, 1)
	if !c.queue.Enqueue(pendingCall{call: call, done: done}) {
		return nil, false
	}
	return done, true
}

// Pending returns the number of queued calls.
func (c *Chain) Pending() int {
	return c.queue.Len()
}

// Run drains submitted calls until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A reverted call is logged with its receipt and the loop
// continues with the next call. Retrying inside the loop would change the
// order of every later call.
func (c *Chain) Run(ctx context.Context) error {
	slog.Info("chain starting", "time", c.time.Now())

	for {
		p, ok := c.queue.TryDequeue()
		if ok {
			c.mu.Lock()
			res := c.execute(ctx, p.call)
			c.mu.Unlock()
			p.done <- res
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("chain stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes with the queue; a closed, empty
			// queue ends the loop.
			if c.queue.Len() == 0 {
				c.queue.mu.Lock()
				closed := c.queue.closed
				c.queue.mu.Unlock()
				if closed {
					slog.Info("chain stopping: queue closed")
					return nil
				}
			}
		}
	}
}

// Stop closes the queue; Run returns once it is drained.
func (c *Chain) Stop() {
	c.queue.Close()
}

// execute runs one call. Caller holds c.mu.
func (c *Chain) execute(ctx context.Context, call Call) Result {
	tx := Tx{
		ID:    c.txIDs.Generate(),
		From:  call.From,
		Time:  c.time.Now(),
		Value: call.Value,
	}.WithContext(ctx)

	err := call.Fn(tx)

	receipt := ir.Receipt{
		TxID:   tx.ID,
		Seq:    c.seq.Next(),
		Time:   tx.Time,
		Label:  call.Label,
		From:   call.From.Hex(),
		Status: ir.StatusOK,
	}
	if err != nil {
		receipt.Status = ir.StatusReverted
		receipt.Code = string(CodeOf(err))
		receipt.Error = err.Error()
		slog.Debug("transaction reverted",
			"tx_id", tx.ID,
			"label", call.Label,
			"from", call.From.Hex(),
			"code", receipt.Code,
			"error", err,
		)
	}

	for _, s := range c.receipts {
		if werr := s.WriteReceipt(ctx, receipt); werr != nil {
			slog.Error("receipt write failed", "tx_id", tx.ID, "error", werr)
		}
	}

	return Result{Receipt: receipt, Err: err}
}
