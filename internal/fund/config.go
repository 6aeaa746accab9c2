package fund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/emission"
	"github.com/roach88/rigs/internal/engine"
)

// SecondsPerDay is the length of one donation day.
const SecondsPerDay uint64 = 24 * 60 * 60

// MinDonation is the smallest accepted donation, in raw units.
var MinDonation = uint256.NewInt(10_000)

// Config is fixed at construction except for the recipient and the admin
// settings.
type Config struct {
	Recipient       common.Address
	InitialEmission *uint256.Int
	MinEmission     *uint256.Int
	HalvingPeriod   uint64 // days

	admin.Settings
}

// Schedule returns the day-based emission schedule.
func (c Config) Schedule() emission.DaySchedule {
	return emission.DaySchedule{
		InitialEmission: c.InitialEmission,
		MinEmission:     c.MinEmission,
		HalvingPeriod:   c.HalvingPeriod,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	if c.Recipient == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "recipient is zero")
	}
	if err := c.Schedule().Validate(); err != nil {
		return err
	}
	return c.Settings.Validate()
}
