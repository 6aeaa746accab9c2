package fund

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/registry"
	"github.com/roach88/rigs/internal/token"
)

var (
	rigAddr   = common.HexToAddress("0x0000000000000000000000000000000000003001")
	quoteAddr = common.HexToAddress("0x0000000000000000000000000000000000000100")
	unitAddr  = common.HexToAddress("0x0000000000000000000000000000000000000200")
	faucet    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	treasury  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	team      = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	protocol  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000c9")
)

const start uint64 = 1_700_000_000

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func day(d uint64) uint64 { return start + d*SecondsPerDay }

func testConfig() Config {
	return Config{
		Recipient:       recipient,
		InitialEmission: u(1_000_000),
		MinEmission:     u(1_000),
		HalvingPeriod:   30,
		Settings: admin.Settings{
			Owner:    owner,
			Treasury: treasury,
			Team:     team,
			URI:      "ipfs://fund",
		},
	}
}

type fixture struct {
	bank  *token.Bank
	quote *token.Ledger
	unit  *token.Ledger
	reg   *registry.Registry
	rec   *engine.Recorder
	rig   *Rig
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{bank: token.NewBank(), rec: engine.NewRecorder()}

	var err error
	f.quote, err = f.bank.Deploy(quoteAddr, "Quote", "QT")
	require.NoError(t, err)
	f.unit, err = f.bank.Deploy(unitAddr, "Unit", "UNIT")
	require.NoError(t, err)
	f.reg, err = registry.New(common.HexToAddress("0x0f00"), owner, protocol, nil)
	require.NoError(t, err)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f.rig, err = New(rigAddr, cfg, Deps{
		Bank:     f.bank,
		Quote:    f.quote,
		Unit:     f.unit,
		Protocol: f.reg,
		Emitter:  f.rec,
	}, start)
	require.NoError(t, err)

	f.quote.AddMinter(faucet)
	for _, a := range []common.Address{alice, bob, carol} {
		require.NoError(t, f.quote.Mint(faucet, a, u(1e15)))
		require.NoError(t, f.quote.Approve(a, rigAddr, token.MaxAllowance))
	}
	return f
}

func (f *fixture) fund(from common.Address, amount uint64, now uint64) error {
	return f.rig.Fund(engine.NewTx(from, now), from, u(amount), "")
}

func TestFund_MinimumDonationSplit(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.fund(alice, 10_000, start+5))

	assert.Equal(t, u(5_000), f.quote.BalanceOf(recipient))
	assert.Equal(t, u(400), f.quote.BalanceOf(team))
	assert.Equal(t, u(100), f.quote.BalanceOf(protocol))
	assert.Equal(t, u(4_500), f.quote.BalanceOf(treasury))
	assert.True(t, f.quote.BalanceOf(rigAddr).IsZero(), "rig keeps nothing")

	assert.Equal(t, u(10_000), f.rig.DayTotal(0))
	assert.Equal(t, u(10_000), f.rig.Donation(0, alice))
	assert.Len(t, f.rec.OfKind(ir.KindFundFunded), 1)
	assert.Len(t, f.rec.OfKind(ir.KindRecipientFee), 1)
}

func TestFund_Rejects(t *testing.T) {
	f := newFixture(t, nil)

	err := f.fund(alice, 9_999, start)
	assert.True(t, engine.IsCode(err, engine.ErrCodeBelowMinDonation))

	err = f.rig.Fund(engine.NewTx(alice, start), common.Address{}, u(10_000), "")
	assert.True(t, engine.IsCode(err, engine.ErrCodeZeroAddress))

	poor := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	err = f.fund(poor, 10_000, start)
	assert.Error(t, err)
	assert.True(t, f.rig.DayTotal(0).IsZero(), "failed transfer records nothing")
	assert.Equal(t, 0, f.rec.Len())

	assert.Equal(t, engine.ErrCodeInsufficientAllow, engine.CodeOf(err))
}

func TestFund_DonationsAccumulatePerDay(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.fund(alice, 10_000, day(0)))
	require.NoError(t, f.fund(alice, 20_000, day(0)+100))
	require.NoError(t, f.fund(bob, 30_000, day(1)-1))
	require.NoError(t, f.fund(bob, 40_000, day(1)))

	assert.Equal(t, u(60_000), f.rig.DayTotal(0))
	assert.Equal(t, u(30_000), f.rig.Donation(0, alice))
	assert.Equal(t, u(30_000), f.rig.Donation(0, bob))
	assert.Equal(t, 2, f.rig.Donors(0))
	assert.Equal(t, u(40_000), f.rig.DayTotal(1))
	assert.Equal(t, uint64(1), f.rig.CurrentDay(day(1)))
	assert.Equal(t, uint64(0), f.rig.CurrentDay(start-10))
}

func TestClaim_ProportionalReward(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.fund(alice, 10_000, day(0)))
	require.NoError(t, f.fund(bob, 30_000, day(0)))

	_, err := f.rig.Claim(engine.NewTx(alice, day(1)-1), alice, 0)
	assert.True(t, engine.IsCode(err, engine.ErrCodeDayNotEnded))

	assert.Equal(t, u(250_000), f.rig.PendingReward(0, alice))

	got, err := f.rig.Claim(engine.NewTx(alice, day(1)), alice, 0)
	require.NoError(t, err)
	assert.Equal(t, u(250_000), got)
	assert.Equal(t, u(250_000), f.unit.BalanceOf(alice))
	assert.True(t, f.rig.Claimed(0, alice))
	assert.True(t, f.rig.PendingReward(0, alice).IsZero())

	_, err = f.rig.Claim(engine.NewTx(alice, day(2)), alice, 0)
	assert.True(t, engine.IsCode(err, engine.ErrCodeAlreadyClaimed))

	_, err = f.rig.Claim(engine.NewTx(carol, day(2)), carol, 0)
	assert.True(t, engine.IsCode(err, engine.ErrCodeNoDonation))

	got, err = f.rig.Claim(engine.NewTx(carol, day(2)), bob, 0)
	require.NoError(t, err, "anyone may claim on behalf of a donor")
	assert.Equal(t, u(750_000), got)
	assert.Equal(t, u(750_000), f.unit.BalanceOf(bob))
	assert.Len(t, f.rec.OfKind(ir.KindFundClaimed), 2)
}

func TestClaim_ShortfallBoundedByClaimants(t *testing.T) {
	f := newFixture(t, nil)
	donors := []common.Address{alice, bob, carol}
	for _, d := range donors {
		require.NoError(t, f.fund(d, 10_000, day(0)))
	}

	total := new(uint256.Int)
	for _, d := range donors {
		got, err := f.rig.Claim(engine.NewTx(d, day(1)), d, 0)
		require.NoError(t, err)
		total.Add(total, got)
	}
	// 1_000_000 / 3 floors to 333_333 each.
	assert.Equal(t, u(999_999), total)
	emission := f.rig.DayEmission(0)
	assert.False(t, total.Gt(emission))
	assert.False(t, new(uint256.Int).Sub(emission, total).Gt(u(uint64(len(donors)))))
}

func TestClaimMany_AllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.fund(alice, 10_000, day(0)))
	require.NoError(t, f.fund(alice, 10_000, day(1)))
	require.NoError(t, f.fund(bob, 10_000, day(1)))

	_, err := f.rig.ClaimMany(engine.NewTx(alice, day(3)), alice, nil)
	assert.True(t, engine.IsCode(err, engine.ErrCodeNothingToClaim))

	_, err = f.rig.ClaimMany(engine.NewTx(alice, day(3)), alice, []uint64{0, 2})
	assert.True(t, engine.IsCode(err, engine.ErrCodeNoDonation))
	assert.False(t, f.rig.Claimed(0, alice), "earlier days stay unclaimed")
	assert.True(t, f.unit.BalanceOf(alice).IsZero())

	_, err = f.rig.ClaimMany(engine.NewTx(alice, day(3)), alice, []uint64{0, 0})
	assert.True(t, engine.IsCode(err, engine.ErrCodeAlreadyClaimed))

	got, err := f.rig.ClaimMany(engine.NewTx(alice, day(3)), alice, []uint64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, u(1_500_000), got)
	assert.Equal(t, u(1_500_000), f.unit.BalanceOf(alice))
}

func TestDayEmission_Halves(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, u(1_000_000), f.rig.DayEmission(29))
	assert.Equal(t, u(500_000), f.rig.DayEmission(30))
	assert.Equal(t, u(1_000), f.rig.DayEmission(30*40), "floored at min emission")

	require.NoError(t, f.fund(alice, 10_000, day(30)))
	got, err := f.rig.Claim(engine.NewTx(alice, day(31)), alice, 30)
	require.NoError(t, err)
	assert.Equal(t, u(500_000), got)
}

func TestAdminSetters(t *testing.T) {
	f := newFixture(t, nil)
	other := common.HexToAddress("0x00000000000000000000000000000000000000d1")

	err := f.rig.SetRecipient(engine.NewTx(alice, 0), other)
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnauthorized))
	err = f.rig.SetRecipient(engine.NewTx(owner, 0), common.Address{})
	assert.True(t, engine.IsCode(err, engine.ErrCodeZeroAddress))

	require.NoError(t, f.rig.SetRecipient(engine.NewTx(owner, 0), other))
	require.NoError(t, f.rig.SetTeam(engine.NewTx(owner, 0), common.Address{}))
	require.NoError(t, f.rig.SetURI(engine.NewTx(owner, 0), "ipfs://new"))
	assert.Len(t, f.rec.OfKind(ir.KindFundRecipient), 1)
	assert.Equal(t, "ipfs://new", f.rig.Config().URI)

	require.NoError(t, f.fund(alice, 10_000, start))
	assert.Equal(t, u(5_000), f.quote.BalanceOf(other))
	assert.Equal(t, u(4_900), f.quote.BalanceOf(treasury), "team share folds into treasury")
}

func TestFund_ReentrancyIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.quote.SetHook(func(from, to common.Address, amount *uint256.Int) error {
		if to == recipient {
			return f.fund(bob, 10_000, start)
		}
		return nil
	})

	err := f.fund(alice, 10_000, start)
	assert.True(t, engine.IsCode(err, engine.ErrCodeReentrantCall))
	assert.True(t, f.quote.BalanceOf(recipient).IsZero())
	assert.True(t, f.rig.DayTotal(0).IsZero())
}

// TestFund_NestedRigRevertsWithCaller drives a second rig from inside the
// first rig's transfer. When the outer call fails, the inner call's state,
// tokens and events go with it.
func TestFund_NestedRigRevertsWithCaller(t *testing.T) {
	for _, outerFails := range []bool{true, false} {
		f := newFixture(t, nil)
		other := common.HexToAddress("0x0000000000000000000000000000000000003002")
		rig2, err := New(other, testConfig(), Deps{
			Bank:     f.bank,
			Quote:    f.quote,
			Unit:     f.unit,
			Protocol: f.reg,
			Emitter:  f.rec,
		}, start)
		require.NoError(t, err)
		require.NoError(t, f.quote.Approve(bob, other, token.MaxAllowance))

		f.quote.SetHook(func(from, to common.Address, amount *uint256.Int) error {
			if from != alice || to != recipient {
				return nil
			}
			if err := rig2.Fund(engine.NewTx(bob, start), bob, u(1_000_000), ""); err != nil {
				return err
			}
			if outerFails {
				return errors.New("recipient refused")
			}
			return nil
		})

		err = f.fund(alice, 10_000, start)
		if outerFails {
			require.Error(t, err)
			assert.Equal(t, u(1e15), f.quote.BalanceOf(bob))
			assert.Equal(t, u(1e15), f.quote.BalanceOf(alice))
			assert.True(t, rig2.DayTotal(0).IsZero())
			assert.True(t, rig2.Donation(0, bob).IsZero())
			assert.Zero(t, rig2.Donors(0))
			assert.Zero(t, f.rec.Len(), "no events from a reverted call")

			f.quote.SetHook(nil)
			_, err = rig2.Claim(engine.NewTx(bob, day(1)), bob, 0)
			assert.True(t, engine.IsCode(err, engine.ErrCodeNoDonation))
			assert.True(t, f.unit.BalanceOf(bob).IsZero())
			continue
		}

		require.NoError(t, err)
		assert.Equal(t, u(1_000_000), rig2.DayTotal(0))
		funded := f.rec.OfKind(ir.KindFundFunded)
		require.Len(t, funded, 2)
		assert.Equal(t, other.Hex(), funded[0].Rig, "inner call publishes first")
		assert.Equal(t, rigAddr.Hex(), funded[1].Rig)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   engine.ErrorCode
	}{
		{"zero recipient", func(c *Config) { c.Recipient = common.Address{} }, engine.ErrCodeZeroAddress},
		{"zero emission", func(c *Config) { c.InitialEmission = u(0) }, engine.ErrCodeInvalidEmission},
		{"min above initial", func(c *Config) { c.MinEmission = u(2_000_000) }, engine.ErrCodeInvalidEmission},
		{"zero halving", func(c *Config) { c.HalvingPeriod = 0 }, engine.ErrCodeInvalidHalving},
		{"zero treasury", func(c *Config) { c.Treasury = common.Address{} }, engine.ErrCodeZeroAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(rigAddr, cfg, Deps{Bank: token.NewBank()}, start)
			assert.True(t, engine.IsCode(err, tt.code), "got %v", err)
		})
	}
}

// TestInvariants funds and claims at random over several days and checks
// that day totals match donations and claims never exceed the emission.
func TestInvariants(t *testing.T) {
	f := newFixture(t, nil)
	rng := rand.New(rand.NewPCG(5, 8))
	donors := []common.Address{alice, bob, carol}

	const days = 6
	for d := uint64(0); d < days; d++ {
		for i := 0; i < 10; i++ {
			who := donors[rng.IntN(len(donors))]
			amount := 10_000 + rng.Uint64N(1_000_000)
			require.NoError(t, f.fund(who, amount, day(d)+rng.Uint64N(SecondsPerDay)))
		}
	}

	for d := uint64(0); d < days; d++ {
		sum := new(uint256.Int)
		for _, who := range donors {
			sum.Add(sum, f.rig.Donation(d, who))
		}
		require.Equal(t, f.rig.DayTotal(d), sum, "day %d", d)

		claimed, claimants := new(uint256.Int), uint64(0)
		for _, who := range donors {
			if f.rig.Donation(d, who).IsZero() {
				continue
			}
			got, err := f.rig.Claim(engine.NewTx(who, day(days)), who, d)
			require.NoError(t, err)
			claimed.Add(claimed, got)
			claimants++
		}
		emission := f.rig.DayEmission(d)
		require.False(t, claimed.Gt(emission), "day %d over-claimed", d)
		require.False(t, new(uint256.Int).Sub(emission, claimed).Gt(u(claimants)), "day %d shortfall", d)
	}
	assert.True(t, f.quote.BalanceOf(rigAddr).IsZero())
}
