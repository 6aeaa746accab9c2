// Package emission implements the three halving schedules. Each one
// halves an initial rate per step and never drops below its floor, however
// far the driving variable runs.
package emission

import (
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// MaxHalvings bounds the supply threshold search.
const MaxHalvings = 64

const secondsPerDay uint64 = 24 * 60 * 60

var (
	// MaxInitialUps is the largest allowed starting rate (1e24 per second).
	MaxInitialUps = uint256.MustFromDecimal("1000000000000000000000000")

	// MinHalvingAmount is the smallest supply step between halvings.
	MinHalvingAmount = uint256.MustFromDecimal("1000000000000000000000")
)

// MinHalvingPeriod is the shortest time-based halving period.
const MinHalvingPeriod = secondsPerDay

// halve returns x >> n, saturating to zero for n >= 256 instead of letting
// the shift count wrap.
func halve(x *uint256.Int, n uint64) *uint256.Int {
	if n >= 256 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Rsh(x, uint(n))
}

// floored returns max(x, floor).
func floored(x, floor *uint256.Int) *uint256.Int {
	if x.Lt(floor) {
		return floor.Clone()
	}
	return x
}

func validateRate(initial, tail *uint256.Int) error {
	if initial == nil || initial.IsZero() || initial.Gt(MaxInitialUps) {
		return engine.NewError(engine.ErrCodeInvalidUps, "initial ups %s outside (0, %s]", dec(initial), MaxInitialUps.Dec())
	}
	if tail == nil || tail.IsZero() || tail.Gt(initial) {
		return engine.NewError(engine.ErrCodeInvalidTailUps, "tail ups %s outside (0, %s]", dec(tail), initial.Dec())
	}
	return nil
}

// SupplySchedule halves each time total minted supply crosses the next
// threshold of the series H, H + H/2, H + H/2 + H/4, ...
type SupplySchedule struct {
	InitialUps    *uint256.Int
	TailUps       *uint256.Int
	HalvingAmount *uint256.Int
}

// Validate checks every bound.
func (s SupplySchedule) Validate() error {
	if err := validateRate(s.InitialUps, s.TailUps); err != nil {
		return err
	}
	if s.HalvingAmount == nil || s.HalvingAmount.Lt(MinHalvingAmount) {
		return engine.NewError(engine.ErrCodeInvalidHalving,
			"halving amount %s below %s", dec(s.HalvingAmount), MinHalvingAmount.Dec())
	}
	return nil
}

// Threshold returns the supply at which halving k+1 happens. The second
// result is false if the threshold does not fit in 256 bits.
func (s SupplySchedule) Threshold(k uint64) (*uint256.Int, bool) {
	threshold := s.HalvingAmount.Clone()
	for i := uint64(1); i <= k && i < 256; i++ {
		if _, overflow := threshold.AddOverflow(threshold, halve(s.HalvingAmount, i)); overflow {
			return nil, false
		}
	}
	return threshold, true
}

// Halvings counts thresholds <= totalMinted, up to MaxHalvings.
func (s SupplySchedule) Halvings(totalMinted *uint256.Int) uint64 {
	threshold := s.HalvingAmount.Clone()
	var n uint64
	for n < MaxHalvings && !totalMinted.Lt(threshold) {
		n++
		if _, overflow := threshold.AddOverflow(threshold, halve(s.HalvingAmount, n)); overflow {
			break
		}
	}
	return n
}

// Ups returns max(InitialUps >> Halvings(totalMinted), TailUps).
func (s SupplySchedule) Ups(totalMinted *uint256.Int) *uint256.Int {
	return floored(halve(s.InitialUps, s.Halvings(totalMinted)), s.TailUps)
}

// TimeSchedule halves once per HalvingPeriod seconds after Start.
type TimeSchedule struct {
	InitialUps    *uint256.Int
	TailUps       *uint256.Int
	HalvingPeriod uint64
	Start         uint64
}

// Validate checks every bound.
func (s TimeSchedule) Validate() error {
	if err := validateRate(s.InitialUps, s.TailUps); err != nil {
		return err
	}
	if s.HalvingPeriod < MinHalvingPeriod {
		return engine.NewError(engine.ErrCodeInvalidHalving,
			"halving period %d below %d seconds", s.HalvingPeriod, MinHalvingPeriod)
	}
	return nil
}

// Halvings returns (now - Start) / HalvingPeriod.
func (s TimeSchedule) Halvings(now uint64) uint64 {
	if now <= s.Start || s.HalvingPeriod == 0 {
		return 0
	}
	return (now - s.Start) / s.HalvingPeriod
}

// Ups returns max(InitialUps >> Halvings(now), TailUps).
func (s TimeSchedule) Ups(now uint64) *uint256.Int {
	return floored(halve(s.InitialUps, s.Halvings(now)), s.TailUps)
}

// NextHalving returns the time of the next rate change after now.
func (s TimeSchedule) NextHalving(now uint64) uint64 {
	return s.Start + (s.Halvings(now)+1)*s.HalvingPeriod
}

// DaySchedule halves once per HalvingPeriod days.
type DaySchedule struct {
	InitialEmission *uint256.Int
	MinEmission     *uint256.Int
	HalvingPeriod   uint64 // days
}

// Validate checks every bound.
func (s DaySchedule) Validate() error {
	if s.InitialEmission == nil || s.InitialEmission.IsZero() {
		return engine.NewError(engine.ErrCodeInvalidEmission, "initial emission must be positive")
	}
	if s.MinEmission == nil || s.MinEmission.IsZero() || s.MinEmission.Gt(s.InitialEmission) {
		return engine.NewError(engine.ErrCodeInvalidEmission,
			"min emission %s outside (0, %s]", dec(s.MinEmission), s.InitialEmission.Dec())
	}
	if s.HalvingPeriod == 0 {
		return engine.NewError(engine.ErrCodeInvalidHalving, "halving period must be at least one day")
	}
	return nil
}

// Halvings returns day / HalvingPeriod.
func (s DaySchedule) Halvings(day uint64) uint64 {
	if s.HalvingPeriod == 0 {
		return 0
	}
	return day / s.HalvingPeriod
}

// Emission returns max(InitialEmission >> Halvings(day), MinEmission).
func (s DaySchedule) Emission(day uint64) *uint256.Int {
	return floored(halve(s.InitialEmission, s.Halvings(day)), s.MinEmission)
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
