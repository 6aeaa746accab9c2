package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tx is the context of one transaction: who sent it, when it executes and
// how much native currency it carries.
//
// Rigs take time only from Tx.Time. There is no wall clock in the engine.
type Tx struct {
	// ID correlates receipts and events. Empty is allowed in unit tests.
	ID string

	// From is the sender (payer of fees, owner checks).
	From common.Address

	// Time is the block timestamp in seconds.
	Time uint64

	// Value is native currency attached to the call (randomness fees).
	// nil means zero.
	Value *uint256.Int

	ctx context.Context
}

// NewTx builds a Tx with no attached value.
func NewTx(from common.Address, time uint64) Tx {
	return Tx{From: from, Time: time}
}

// WithValue returns a copy of tx carrying value.
func (tx Tx) WithValue(value *uint256.Int) Tx {
	tx.Value = value
	return tx
}

// WithContext returns a copy of tx bound to ctx.
func (tx Tx) WithContext(ctx context.Context) Tx {
	tx.ctx = ctx
	return tx
}

// Context returns the context the transaction executes under.
func (tx Tx) Context() context.Context {
	if tx.ctx == nil {
		return context.Background()
	}
	return tx.ctx
}

// ValueOrZero returns the attached value, never nil.
func (tx Tx) ValueOrZero() *uint256.Int {
	if tx.Value == nil {
		return new(uint256.Int)
	}
	return tx.Value
}
