package spin

import (
	"math/rand/v2"
	"slices"
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
	"github.com/roach88/rigs/internal/vrf"
)

var (
	rigAddr    = common.HexToAddress("0x0000000000000000000000000000000000002001")
	quoteAddr  = common.HexToAddress("0x0000000000000000000000000000000000000100")
	unitAddr   = common.HexToAddress("0x0000000000000000000000000000000000000200")
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	faucet     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	team       = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	protocol   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

const (
	start = uint64(1_000)
	day   = uint64(24 * 60 * 60)
)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func e18(n uint64) *uint256.Int { return new(uint256.Int).Mul(u(n), u(1e18)) }

func testConfig() Config {
	return Config{
		EpochPeriod:     3_600,
		PriceMultiplier: e18(2),
		MinInitPrice:    u(1e6),
		InitialUps:      e18(1),
		TailUps:         u(1e16),
		HalvingPeriod:   30 * day,
		Odds:            []uint64{10, 100, 8_000},
		Settings: admin.Settings{
			Owner:    owner,
			Treasury: treasury,
			Team:     team,
		},
	}
}

type fixture struct {
	bank   *token.Bank
	quote  *token.Ledger
	unit   *token.Ledger
	oracle *vrf.Simulator
	rec    *engine.Recorder
	rig    *Rig
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{bank: token.NewBank(), rec: engine.NewRecorder()}
	var err error
	f.quote, err = f.bank.Deploy(quoteAddr, "Quote", "QT")
	require.NoError(t, err)
	f.unit, err = f.bank.Deploy(unitAddr, "Unit", "UNIT")
	require.NoError(t, err)
	f.oracle = vrf.NewSimulator(oracleAddr, "spin-test", u(5))
	reg, err := registry.New(common.HexToAddress("0x0f00"), owner, protocol, nil)
	require.NoError(t, err)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f.rig, err = New(rigAddr, cfg, Deps{
		Bank: f.bank, Quote: f.quote, Unit: f.unit,
		Oracle: f.oracle, Protocol: reg, Emitter: f.rec,
	}, start)
	require.NoError(t, err)

	f.quote.AddMinter(faucet)
	for _, a := range []common.Address{alice, bob} {
		require.NoError(t, f.quote.Mint(faucet, a, new(uint256.Int).Lsh(u(1), 200)))
		require.NoError(t, f.quote.Approve(a, rigAddr, token.MaxAllowance))
	}
	return f
}

func (f *fixture) spin(who common.Address, now uint64) (*uint256.Int, error) {
	tx := engine.NewTx(who, now).WithValue(u(5))
	return f.rig.Spin(tx, who, f.rig.Epoch().ID, now, token.MaxAllowance)
}

func TestSpin_ChargesPriceAndRequestsDraw(t *testing.T) {
	f := newFixture(t, nil)

	price, err := f.spin(alice, start)
	require.NoError(t, err)
	assert.Equal(t, u(1e6), price)

	assert.Equal(t, u(950_000), f.quote.BalanceOf(treasury))
	assert.Equal(t, u(40_000), f.quote.BalanceOf(team))
	assert.Equal(t, u(10_000), f.quote.BalanceOf(protocol))
	assert.True(t, f.quote.BalanceOf(rigAddr).IsZero())

	e := f.rig.Epoch()
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, u(2e6), e.InitPrice)
	assert.Equal(t, start, e.StartTime)

	assert.Equal(t, []uint64{1}, f.rig.PendingDraws())
	d, ok := f.rig.Draw(1)
	require.True(t, ok)
	assert.Equal(t, Draw{Spinner: alice, EpochID: 0}, d)
	assert.True(t, f.rig.Pool().IsZero(), "no time elapsed, nothing emitted")
}

func TestSpin_PayoutUsesLivePool(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.spin(alice, start)
	require.NoError(t, err)

	// A later spin emits 100s of ups into the pool before alice's draw lands.
	_, err = f.spin(bob, start+100)
	require.NoError(t, err)
	assert.Equal(t, e18(100), f.rig.Pool())
	assert.Equal(t, start+100, f.rig.LastEmission())

	require.NoError(t, f.oracle.FulfillWith(engine.Tx{Time: start + 200}, 1, u(2)))
	assert.Equal(t, e18(80), f.unit.BalanceOf(alice))
	assert.Equal(t, e18(20), f.rig.Pool())

	require.NoError(t, f.oracle.FulfillWith(engine.Tx{Time: start + 300}, 2, u(3)))
	assert.Equal(t, u(2e16), f.unit.BalanceOf(bob), "random 3 selects position 0 (10 bps)")
	assert.Empty(t, f.rig.PendingDraws())

	wins := f.rec.OfKind(ir.KindSpinWin)
	require.Len(t, wins, 2)
	assert.Equal(t, ir.IRInt(8_000), wins[0].Fields["odds_bps"])
	assert.Equal(t, ir.IRString(e18(80).Dec()), wins[0].Fields["amount"])
	assert.Equal(t, ir.IRString(e18(100).Dec()), wins[0].Fields["pool"])
}

func TestSpin_Guards(t *testing.T) {
	f := newFixture(t, nil)
	now := start + 10
	fee := u(5)

	tests := []struct {
		name string
		tx   engine.Tx
		who  common.Address
		ep   uint64
		dl   uint64
		max  *uint256.Int
		code engine.ErrorCode
	}{
		{"deadline", engine.NewTx(alice, now).WithValue(fee), alice, 0, now - 1, token.MaxAllowance, engine.ErrCodeDeadlinePassed},
		{"zero spinner", engine.NewTx(alice, now).WithValue(fee), common.Address{}, 0, now, token.MaxAllowance, engine.ErrCodeZeroSpinner},
		{"epoch", engine.NewTx(alice, now).WithValue(fee), alice, 1, now, token.MaxAllowance, engine.ErrCodeEpochMismatch},
		{"max price", engine.NewTx(alice, now).WithValue(fee), alice, 0, now, u(1), engine.ErrCodeMaxPriceExceeded},
		{"fee", engine.NewTx(alice, now).WithValue(u(4)), alice, 0, now, token.MaxAllowance, engine.ErrCodeInsufficientFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rig.Spin(tt.tx, tt.who, tt.ep, tt.dl, tt.max)
			assert.True(t, engine.IsCode(err, tt.code), "got %v", err)
		})
	}
	assert.Equal(t, uint64(0), f.rig.Epoch().ID)
	assert.Empty(t, f.oracle.Pending())
}

func TestSpin_FailedPaymentKeepsEmissionPending(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.quote.Approve(alice, rigAddr, u(1)))

	_, err := f.spin(alice, start+50)
	assert.True(t, engine.IsCode(err, engine.ErrCodeInsufficientAllow))
	assert.True(t, f.rig.Pool().IsZero())
	assert.Equal(t, start, f.rig.LastEmission())
	assert.Empty(t, f.oracle.Pending())

	pending, err := f.rig.PendingEmission(start + 50)
	require.NoError(t, err)
	assert.Equal(t, e18(50), pending)
}

func TestSpin_FulfillRejects(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.spin(alice, start)
	require.NoError(t, err)

	err = f.rig.Fulfill(engine.NewTx(alice, start), 1, u(0))
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnauthorized))
	err = f.rig.Fulfill(engine.NewTx(oracleAddr, start), 7, u(0))
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnknownRequest))

	require.NoError(t, f.rig.Fulfill(engine.NewTx(oracleAddr, start), 1, u(0)))
	err = f.rig.Fulfill(engine.NewTx(oracleAddr, start), 1, u(0))
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnknownRequest))
}

func TestSpin_PayoutReentrancyLeavesDrawPending(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.spin(alice, start)
	require.NoError(t, err)
	_, err = f.spin(bob, start+10)
	require.NoError(t, err)

	f.unit.SetHook(func(from, to common.Address, amount *uint256.Int) error {
		if from == rigAddr {
			_, err := f.spin(to, start+20)
			return err
		}
		return nil
	})
	err = f.oracle.FulfillWith(engine.Tx{Time: start + 20}, 1, u(2))
	assert.True(t, engine.IsCode(err, engine.ErrCodeReentrantCall))
	assert.Equal(t, []uint64{1, 2}, f.rig.PendingDraws())
	assert.Equal(t, e18(10), f.rig.Pool())
}

func TestSpin_RevertedWithEnclosingCall(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.UseJournal(f.bank)
	now := start + 600

	err := f.bank.Atomic(func() error {
		_, err := f.spin(alice, now)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	e := f.rig.Epoch()
	assert.Equal(t, uint64(0), e.ID)
	assert.Equal(t, start, e.StartTime)
	assert.Empty(t, f.rig.PendingDraws())
	assert.Empty(t, f.oracle.Pending())
	assert.True(t, f.rig.Pool().IsZero())
	assert.Equal(t, start, f.rig.LastEmission())
	assert.True(t, f.quote.BalanceOf(treasury).IsZero())
	assert.Zero(t, f.rec.Len())

	// The emission that was rolled back is minted by the next spin.
	_, err = f.spin(alice, now)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, f.rig.PendingDraws())
	assert.False(t, f.rig.Pool().IsZero())
}

func TestSpin_UpsHalvesOverTime(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, e18(1), f.rig.Ups(start))
	assert.Equal(t, u(5e17), f.rig.Ups(start+30*day))
	assert.Equal(t, u(1e16), f.rig.Ups(start+100_000*day))
}

func TestSpin_AdminSetters(t *testing.T) {
	f := newFixture(t, nil)
	assert.True(t, engine.IsCode(f.rig.SetTeam(engine.NewTx(alice, 0), alice), engine.ErrCodeUnauthorized))
	require.NoError(t, f.rig.SetTeam(engine.NewTx(owner, 0), common.Address{}))
	newTreasury := common.HexToAddress("0x00000000000000000000000000000000000000d7")
	require.NoError(t, f.rig.SetTreasury(engine.NewTx(owner, 0), newTreasury))
	require.NoError(t, f.rig.SetURI(engine.NewTx(owner, 0), "ipfs://spin"))
	assert.Equal(t, "ipfs://spin", f.rig.Config().URI)

	_, err := f.spin(alice, start)
	require.NoError(t, err)
	assert.Equal(t, u(990_000), f.quote.BalanceOf(newTreasury), "team share folds into treasury")
	assert.True(t, f.quote.BalanceOf(treasury).IsZero())
}

func TestSelectOdds_UniformOverPositions(t *testing.T) {
	counts := make([]int, 3)
	for i := uint64(0); i < 300; i++ {
		counts[SelectOdds(u(i), 3)]++
	}
	assert.Equal(t, []int{100, 100, 100}, counts)
}

func TestNew_Validation(t *testing.T) {
	bank := token.NewBank()
	q, _ := bank.Deploy(quoteAddr, "Quote", "QT")
	un, _ := bank.Deploy(unitAddr, "Unit", "UNIT")
	deps := Deps{Bank: bank, Quote: q, Unit: un, Oracle: vrf.NewSimulator(oracleAddr, "", nil)}

	tests := []struct {
		name   string
		mutate func(*Config)
		code   engine.ErrorCode
	}{
		{"empty odds", func(c *Config) { c.Odds = nil }, engine.ErrCodeInvalidOdds},
		{"odds low", func(c *Config) { c.Odds = []uint64{9} }, engine.ErrCodeInvalidOdds},
		{"odds high", func(c *Config) { c.Odds = []uint64{8_001} }, engine.ErrCodeInvalidOdds},
		{"init price", func(c *Config) { c.InitPrice = u(1) }, engine.ErrCodeInvalidInitPrice},
		{"halving period", func(c *Config) { c.HalvingPeriod = 60 }, engine.ErrCodeInvalidHalving},
		{"ups", func(c *Config) { c.InitialUps = new(uint256.Int) }, engine.ErrCodeInvalidUps},
		{"owner", func(c *Config) { c.Owner = common.Address{} }, engine.ErrCodeZeroAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(rigAddr, cfg, deps, start)
			assert.True(t, engine.IsCode(err, tt.code), "got %v", err)
		})
	}

	_, err := New(rigAddr, testConfig(), Deps{Bank: bank, Quote: q, Unit: un}, start)
	assert.True(t, engine.IsCode(err, engine.ErrCodeZeroAddress), "oracle is required")
}

// TestInvariants interleaves spins and fulfilments at random and checks
// fee conservation, epoch stepping and payout bounds.
func TestInvariants(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Odds = []uint64{10, 2_500, 5_000, 8_000} })
	rng := rand.New(rand.NewPCG(99, 3))
	sinks := []common.Address{treasury, team, protocol}
	sinkTotal := func() *uint256.Int {
		total := new(uint256.Int)
		for _, s := range sinks {
			total.Add(total, f.quote.BalanceOf(s))
		}
		return total
	}
	spinners := []common.Address{alice, bob}

	now := start
	for step := 0; step < 400; step++ {
		now += rng.Uint64N(2 * 3_600)
		pending := f.rig.PendingDraws()

		if len(pending) > 0 && rng.IntN(2) == 0 {
			seq := pending[rng.IntN(len(pending))]
			d, _ := f.rig.Draw(seq)
			pool := f.rig.Pool()
			before := f.unit.BalanceOf(d.Spinner)

			random := &uint256.Int{rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64()}
			require.NoError(t, f.oracle.FulfillWith(engine.Tx{Time: now}, seq, random))

			won := new(uint256.Int).Sub(f.unit.BalanceOf(d.Spinner), before)
			maxWin := new(uint256.Int).Div(new(uint256.Int).Mul(pool, u(8_000)), u(10_000))
			require.False(t, won.Gt(maxWin), "payout above 80%% of pool")
			require.Equal(t, new(uint256.Int).Sub(pool, won), f.rig.Pool())

			wins := f.rec.OfKind(ir.KindSpinWin)
			odds := wins[len(wins)-1].Fields["odds_bps"].(ir.IRInt)
			require.True(t, slices.Contains(f.rig.Odds(), uint64(odds)))
			continue
		}

		who := spinners[rng.IntN(len(spinners))]
		epoch := f.rig.Epoch().ID
		paidBefore := sinkTotal()
		poolBefore := f.rig.Pool()
		emission, err := f.rig.PendingEmission(now)
		require.NoError(t, err)

		price, err := f.spin(who, now)
		require.NoError(t, err)
		require.Equal(t, epoch+1, f.rig.Epoch().ID)
		require.Equal(t, price, new(uint256.Int).Sub(sinkTotal(), paidBefore))
		require.Equal(t, new(uint256.Int).Add(poolBefore, emission), f.rig.Pool())
	}
}
