// Package pricing implements the linear Dutch-auction price law shared by
// every rig and the treasury auction.
//
// All division truncates toward zero.
package pricing

import (
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// Bounds on auction parameters.
const (
	MinEpochPeriod uint64 = 10 * 60
	MaxEpochPeriod uint64 = 365 * 24 * 60 * 60
)

var (
	// Precision is the fixed-point scale of multipliers (1e18 = 1x).
	Precision = uint256.NewInt(1e18)

	MinPriceMultiplier = uint256.MustFromDecimal("1100000000000000000")
	MaxPriceMultiplier = uint256.MustFromDecimal("3000000000000000000")

	// MinInitPriceFloor is the smallest allowed minimum init price.
	MinInitPriceFloor = uint256.NewInt(1e6)

	// AbsMaxInitPrice caps every init price: 2^192 - 1.
	AbsMaxInitPrice = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 192), uint256.NewInt(1))
)

// Price returns initPrice * (epochPeriod - elapsed) / epochPeriod, or zero
// once elapsed >= epochPeriod. A now before startTime prices at initPrice.
func Price(initPrice *uint256.Int, startTime, epochPeriod, now uint64) *uint256.Int {
	if initPrice == nil || epochPeriod == 0 {
		return new(uint256.Int)
	}
	var elapsed uint64
	if now > startTime {
		elapsed = now - startTime
	}
	if elapsed >= epochPeriod {
		return new(uint256.Int)
	}
	remaining := uint256.NewInt(epochPeriod - elapsed)
	// remaining < epochPeriod, so the quotient never exceeds initPrice and
	// the 512-bit intermediate never overflows the result.
	p, _ := new(uint256.Int).MulDivOverflow(initPrice, remaining, uint256.NewInt(epochPeriod))
	return p
}

// NextInitPrice returns max(paid * priceMultiplier / 1e18, minInitPrice),
// clamped to AbsMaxInitPrice.
func NextInitPrice(paid, priceMultiplier, minInitPrice *uint256.Int) *uint256.Int {
	next, overflow := new(uint256.Int).MulDivOverflow(paid, priceMultiplier, Precision)
	if overflow || next.Gt(AbsMaxInitPrice) {
		next.Set(AbsMaxInitPrice)
	}
	if next.Lt(minInitPrice) {
		next.Set(minInitPrice)
	}
	if next.Gt(AbsMaxInitPrice) {
		next.Set(AbsMaxInitPrice)
	}
	return next
}

// Params are the immutable settings of one Dutch auction.
type Params struct {
	EpochPeriod     uint64
	PriceMultiplier *uint256.Int
	MinInitPrice    *uint256.Int
}

// Validate checks every bound.
func (p Params) Validate() error {
	if p.EpochPeriod < MinEpochPeriod || p.EpochPeriod > MaxEpochPeriod {
		return engine.NewError(engine.ErrCodeInvalidEpochPeriod,
			"epoch period %d outside [%d, %d]", p.EpochPeriod, MinEpochPeriod, MaxEpochPeriod)
	}
	if p.PriceMultiplier == nil || p.PriceMultiplier.Lt(MinPriceMultiplier) || p.PriceMultiplier.Gt(MaxPriceMultiplier) {
		return engine.NewError(engine.ErrCodeInvalidPriceMultiplier,
			"price multiplier %s outside [%s, %s]", dec(p.PriceMultiplier), MinPriceMultiplier.Dec(), MaxPriceMultiplier.Dec())
	}
	if p.MinInitPrice == nil || p.MinInitPrice.Lt(MinInitPriceFloor) || p.MinInitPrice.Gt(AbsMaxInitPrice) {
		return engine.NewError(engine.ErrCodeInvalidMinInitPrice,
			"min init price %s outside [%s, 2^192-1]", dec(p.MinInitPrice), MinInitPriceFloor.Dec())
	}
	return nil
}

// ValidateInitPrice checks a starting price against the params.
func (p Params) ValidateInitPrice(initPrice *uint256.Int) error {
	if initPrice == nil || initPrice.Lt(p.MinInitPrice) || initPrice.Gt(AbsMaxInitPrice) {
		return engine.NewError(engine.ErrCodeInvalidInitPrice,
			"init price %s outside [%s, 2^192-1]", dec(initPrice), dec(p.MinInitPrice))
	}
	return nil
}

// Next is NextInitPrice with these params.
func (p Params) Next(paid *uint256.Int) *uint256.Int {
	return NextInitPrice(paid, p.PriceMultiplier, p.MinInitPrice)
}

// Epoch is one pricing cycle.
type Epoch struct {
	ID        uint64
	InitPrice *uint256.Int
	StartTime uint64
}

// Price is the current price of the epoch.
func (e Epoch) Price(epochPeriod, now uint64) *uint256.Int {
	return Price(e.InitPrice, e.StartTime, epochPeriod, now)
}

// Advance settles the epoch at paid and returns its successor starting at
// now.
func (e Epoch) Advance(paid *uint256.Int, p Params, now uint64) Epoch {
	return Epoch{
		ID:        e.ID + 1,
		InitPrice: p.Next(paid),
		StartTime: now,
	}
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
