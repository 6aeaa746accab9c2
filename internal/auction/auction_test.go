package auction

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/token"
)

var (
	auctionAddr = common.HexToAddress("0x0000000000000000000000000000000000004001")
	payAddr     = common.HexToAddress("0x0000000000000000000000000000000000000300")
	wethAddr    = common.HexToAddress("0x0000000000000000000000000000000000000100")
	usdcAddr    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	faucet      = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	buyer       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	receiver    = common.HexToAddress("0x00000000000000000000000000000000000000b9")
)

const start uint64 = 1_000

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func testConfig() Config {
	return Config{
		InitPrice:       u(1_000_000_000),
		PaymentToken:    payAddr,
		EpochPeriod:     3_600,
		PriceMultiplier: new(uint256.Int).Mul(u(2), u(1e18)),
		MinInitPrice:    u(1_000_000),
	}
}

type fixture struct {
	bank    *token.Bank
	pay     *token.Ledger
	weth    *token.Ledger
	usdc    *token.Ledger
	rec     *engine.Recorder
	auction *Auction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bank: token.NewBank(), rec: engine.NewRecorder()}

	var err error
	f.pay, err = f.bank.Deploy(payAddr, "LP", "LP")
	require.NoError(t, err)
	f.weth, err = f.bank.Deploy(wethAddr, "Wrapped Ether", "WETH")
	require.NoError(t, err)
	f.usdc, err = f.bank.Deploy(usdcAddr, "USD Coin", "USDC")
	require.NoError(t, err)

	f.auction, err = New(auctionAddr, testConfig(), f.bank, f.rec, start)
	require.NoError(t, err)

	for _, l := range []*token.Ledger{f.pay, f.weth, f.usdc} {
		l.AddMinter(faucet)
	}
	require.NoError(t, f.pay.Mint(faucet, buyer, u(1e12)))
	require.NoError(t, f.pay.Approve(buyer, auctionAddr, token.MaxAllowance))
	require.NoError(t, f.weth.Mint(faucet, auctionAddr, u(7_000)))
	require.NoError(t, f.usdc.Mint(faucet, auctionAddr, u(3_000)))
	return f
}

func (f *fixture) buy(now uint64, maxPayment *uint256.Int, assets ...common.Address) (*uint256.Int, error) {
	return f.auction.Buy(engine.NewTx(buyer, now), assets, receiver, f.auction.Epoch().ID, now, maxPayment)
}

func TestBuy_ExpiredEpochIsFree(t *testing.T) {
	f := newFixture(t)

	now := start + 3_600
	assert.True(t, f.auction.Price(now).IsZero())

	paid, err := f.buy(now, u(0), wethAddr, usdcAddr)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	assert.Equal(t, u(7_000), f.weth.BalanceOf(receiver))
	assert.Equal(t, u(3_000), f.usdc.BalanceOf(receiver))
	assert.True(t, f.weth.BalanceOf(auctionAddr).IsZero())
	assert.True(t, f.usdc.BalanceOf(auctionAddr).IsZero())

	epoch := f.auction.Epoch()
	assert.Equal(t, uint64(1), epoch.ID)
	assert.Equal(t, u(1_000_000), epoch.InitPrice, "resets to min init price")
	assert.Equal(t, now, epoch.StartTime)
}

func TestBuy_PaymentIsBurned(t *testing.T) {
	f := newFixture(t)

	now := start + 1_800
	paid, err := f.buy(now, u(1_000_000_000), wethAddr)
	require.NoError(t, err)
	assert.Equal(t, u(500_000_000), paid)
	assert.Equal(t, u(500_000_000), f.pay.BalanceOf(token.DeadAddress))
	assert.Equal(t, u(1_000_000_000), f.auction.Epoch().InitPrice)
	assert.Equal(t, u(3_000), f.usdc.BalanceOf(auctionAddr), "unlisted assets stay")

	events := f.rec.OfKind(ir.KindAuctionBuy)
	require.Len(t, events, 1)
	fields := events[0].Fields
	assert.Equal(t, ir.IRString("500000000"), fields["payment"])
	assert.Equal(t, ir.IRInt(0), fields["epoch_id"])
	assets := fields["assets"].(ir.IRArray)
	require.Len(t, assets, 1)
	assert.Equal(t, ir.IRString("7000"), assets[0].(ir.IRObject)["amount"])
}

func TestBuy_CustomPaymentReceiver(t *testing.T) {
	bank := token.NewBank()
	_, err := bank.Deploy(payAddr, "LP", "LP")
	require.NoError(t, err)

	cfg := testConfig()
	sink := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	cfg.PaymentReceiver = sink
	a, err := New(auctionAddr, cfg, bank, nil, start)
	require.NoError(t, err)
	assert.Equal(t, sink, a.Config().PaymentReceiver)

	a, err = New(auctionAddr, testConfig(), bank, nil, start)
	require.NoError(t, err)
	assert.Equal(t, token.DeadAddress, a.Config().PaymentReceiver)
}

func TestBuy_Guards(t *testing.T) {
	f := newFixture(t)
	tx := engine.NewTx(buyer, start+10)

	_, err := f.auction.Buy(tx, []common.Address{wethAddr}, receiver, 0, start+9, u(1e12))
	assert.True(t, engine.IsCode(err, engine.ErrCodeDeadlinePassed))

	_, err = f.auction.Buy(tx, nil, receiver, 0, start+10, u(1e12))
	assert.True(t, engine.IsCode(err, engine.ErrCodeEmptyAssets))

	_, err = f.auction.Buy(tx, []common.Address{wethAddr}, receiver, 1, start+10, u(1e12))
	assert.True(t, engine.IsCode(err, engine.ErrCodeEpochMismatch))
	assert.True(t, engine.IsFrontrun(err))

	_, err = f.auction.Buy(tx, []common.Address{wethAddr}, receiver, 0, start+10, u(1))
	assert.True(t, engine.IsCode(err, engine.ErrCodeMaxPriceExceeded))

	_, err = f.auction.Buy(tx, []common.Address{wethAddr}, common.Address{}, 0, start+10, u(1e12))
	assert.True(t, engine.IsCode(err, engine.ErrCodeZeroAddress))
	assert.Equal(t, 0, f.rec.Len())
}

func TestBuy_UnknownAssetRevertsEverything(t *testing.T) {
	f := newFixture(t)
	bogus := common.HexToAddress("0x0000000000000000000000000000000000000bad")

	_, err := f.buy(start+1_800, u(1e12), wethAddr, bogus)
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnknownToken))

	var re *engine.RigError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, auctionAddr.Hex(), re.Rig)

	assert.Equal(t, u(7_000), f.weth.BalanceOf(auctionAddr))
	assert.True(t, f.pay.BalanceOf(token.DeadAddress).IsZero())
	assert.Equal(t, uint64(0), f.auction.Epoch().ID)
}

func TestBuy_SecondBuyerLosesTheRace(t *testing.T) {
	f := newFixture(t)
	now := start + 3_600

	_, err := f.buy(now, u(0), wethAddr)
	require.NoError(t, err)

	_, err = f.auction.Buy(engine.NewTx(buyer, now), []common.Address{wethAddr}, receiver, 0, now, u(0))
	assert.True(t, engine.IsCode(err, engine.ErrCodeEpochMismatch))
}

func TestNew_Validation(t *testing.T) {
	bank := token.NewBank()
	_, err := bank.Deploy(payAddr, "LP", "LP")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		code   engine.ErrorCode
	}{
		{"short epoch", func(c *Config) { c.EpochPeriod = 599 }, engine.ErrCodeInvalidEpochPeriod},
		{"low multiplier", func(c *Config) { c.PriceMultiplier = u(1e18) }, engine.ErrCodeInvalidPriceMultiplier},
		{"low min price", func(c *Config) { c.MinInitPrice = u(999_999) }, engine.ErrCodeInvalidMinInitPrice},
		{"init below min", func(c *Config) { c.InitPrice = u(10) }, engine.ErrCodeInvalidInitPrice},
		{"zero payment token", func(c *Config) { c.PaymentToken = common.Address{} }, engine.ErrCodeZeroAddress},
		{"unknown payment token", func(c *Config) { c.PaymentToken = wethAddr }, engine.ErrCodeUnknownToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(auctionAddr, cfg, bank, nil, start)
			assert.True(t, engine.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestBuy_RevertedWithEnclosingCall(t *testing.T) {
	f := newFixture(t)
	now := start + 1_800

	err := f.bank.Atomic(func() error {
		_, err := f.buy(now, token.MaxAllowance, wethAddr)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, uint64(0), f.auction.Epoch().ID)
	assert.Equal(t, u(1_000_000_000), f.auction.Epoch().InitPrice)
	assert.Equal(t, u(7_000), f.weth.BalanceOf(auctionAddr))
	assert.Equal(t, u(1e12), f.pay.BalanceOf(buyer))
	assert.Zero(t, f.rec.Len())

	paid, err := f.buy(now, token.MaxAllowance, wethAddr)
	require.NoError(t, err)
	assert.Equal(t, u(500_000_000), paid)
	assert.Len(t, f.rec.OfKind(ir.KindAuctionBuy), 1)
}
