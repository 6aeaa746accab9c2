package spin

import (
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/emission"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/pricing"
)

// Odds bounds in basis points.
const (
	MinOddsBps = 10
	MaxOddsBps = 8_000
)

// Config is fixed at construction except for the admin settings.
type Config struct {
	EpochPeriod     uint64
	PriceMultiplier *uint256.Int
	MinInitPrice    *uint256.Int

	// InitPrice is the price of the first epoch; nil starts at MinInitPrice.
	InitPrice *uint256.Int

	InitialUps    *uint256.Int
	TailUps       *uint256.Int
	HalvingPeriod uint64 // seconds

	// Odds are payout fractions of the pool in basis points. A draw picks
	// one position uniformly.
	Odds []uint64

	admin.Settings
}

// Pricing returns the auction parameters.
func (c Config) Pricing() pricing.Params {
	return pricing.Params{
		EpochPeriod:     c.EpochPeriod,
		PriceMultiplier: c.PriceMultiplier,
		MinInitPrice:    c.MinInitPrice,
	}
}

// Schedule returns the time-based schedule starting at start.
func (c Config) Schedule(start uint64) emission.TimeSchedule {
	return emission.TimeSchedule{
		InitialUps:    c.InitialUps,
		TailUps:       c.TailUps,
		HalvingPeriod: c.HalvingPeriod,
		Start:         start,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	p := c.Pricing()
	if err := p.Validate(); err != nil {
		return err
	}
	if c.InitPrice != nil {
		if err := p.ValidateInitPrice(c.InitPrice); err != nil {
			return err
		}
	}
	if err := c.Schedule(0).Validate(); err != nil {
		return err
	}
	if len(c.Odds) == 0 {
		return engine.NewError(engine.ErrCodeInvalidOdds, "odds are empty")
	}
	for i, o := range c.Odds {
		if o < MinOddsBps || o > MaxOddsBps {
			return engine.NewError(engine.ErrCodeInvalidOdds,
				"odds[%d] = %d outside [%d, %d]", i, o, MinOddsBps, MaxOddsBps)
		}
	}
	return c.Settings.Validate()
}
