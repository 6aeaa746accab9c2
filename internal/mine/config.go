package mine

import (
	"strconv"

	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/emission"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/pricing"
)

// Capacity bounds.
const (
	MinCapacity = 1
	MaxCapacity = 256
)

// Multiplier duration bounds, in seconds.
const (
	MinMultiplierDuration uint64 = 60 * 60
	MaxMultiplierDuration uint64 = 7 * 24 * 60 * 60
)

var (
	// One is the neutral ups multiplier (1x).
	One = uint256.NewInt(1e18)

	// MaxUpsMultiplier is 10x.
	MaxUpsMultiplier = uint256.NewInt(10e18)
)

// Config is fixed at construction except for the admin settings and
// capacity (increase only).
type Config struct {
	Name   string
	Symbol string

	EpochPeriod     uint64
	PriceMultiplier *uint256.Int
	MinInitPrice    *uint256.Int

	InitialUps    *uint256.Int
	TailUps       *uint256.Int
	HalvingAmount *uint256.Int

	// UpsMultipliers are the values a draw picks from, each in [1x, 10x].
	UpsMultipliers     []*uint256.Int
	MultiplierDuration uint64

	Capacity          uint64
	RandomnessEnabled bool

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

// Schedule returns the supply-based emission schedule.
func (c Config) Schedule() emission.SupplySchedule {
	return emission.SupplySchedule{
		InitialUps:    c.InitialUps,
		TailUps:       c.TailUps,
		HalvingAmount: c.HalvingAmount,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	if c.Name == "" || c.Symbol == "" {
		return engine.NewError(engine.ErrCodeEmptyName, "name and symbol are required")
	}
	if err := c.Pricing().Validate(); err != nil {
		return err
	}
	if err := c.Schedule().Validate(); err != nil {
		return err
	}
	if err := validateMultipliers(c.UpsMultipliers, c.RandomnessEnabled); err != nil {
		return err
	}
	if c.MultiplierDuration < MinMultiplierDuration || c.MultiplierDuration > MaxMultiplierDuration {
		return engine.NewError(engine.ErrCodeInvalidMultiplierDuration,
			"multiplier duration %d outside [%d, %d]", c.MultiplierDuration, MinMultiplierDuration, MaxMultiplierDuration)
	}
	if c.Capacity < MinCapacity || c.Capacity > MaxCapacity {
		return engine.NewError(engine.ErrCodeInvalidCapacity,
			"capacity %d outside [%d, %d]", c.Capacity, MinCapacity, MaxCapacity)
	}
	return c.Settings.Validate()
}

func validateMultipliers(ms []*uint256.Int, required bool) error {
	if required && len(ms) == 0 {
		return engine.NewError(engine.ErrCodeInvalidMultiplier, "randomness needs at least one ups multiplier")
	}
	for i, m := range ms {
		if m == nil || m.Lt(One) || m.Gt(MaxUpsMultiplier) {
			return engine.NewError(engine.ErrCodeInvalidMultiplier,
				"ups multiplier %d outside [1e18, 10e18]", i).WithDetail("index", strconv.Itoa(i))
		}
	}
	return nil
}
