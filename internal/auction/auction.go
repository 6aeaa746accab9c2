// Package auction implements the treasury auction: a Dutch auction that
// sells every asset the contract holds, in one lot, for a payment token
// that is burned.
package auction

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/pricing"
	"github.com/roach88/rigs/internal/token"
)

// Config is fixed at construction.
type Config struct {
	InitPrice       *uint256.Int
	PaymentToken    common.Address
	PaymentReceiver common.Address // zero means token.DeadAddress
	EpochPeriod     uint64
	PriceMultiplier *uint256.Int
	MinInitPrice    *uint256.Int
}

// Pricing returns the auction parameters.
func (c Config) Pricing() pricing.Params {
	return pricing.Params{
		EpochPeriod:     c.EpochPeriod,
		PriceMultiplier: c.PriceMultiplier,
		MinInitPrice:    c.MinInitPrice,
	}
}

// Validate checks every bound.
func (c Config) Validate() error {
	p := c.Pricing()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := p.ValidateInitPrice(c.InitPrice); err != nil {
		return err
	}
	if c.PaymentToken == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "payment token is zero")
	}
	return nil
}

// Auction is one treasury auction.
type Auction struct {
	addr    common.Address
	cfg     Config
	params  pricing.Params
	bank    *token.Bank
	payment *token.Ledger
	emitter engine.Emitter
	guard   engine.Guard
	epoch   pricing.Epoch
}

// New creates an auction at addr whose first epoch starts at start. The
// payment token must already be deployed in bank.
func New(addr common.Address, cfg Config, bank *token.Bank, emitter engine.Emitter, start uint64) (*Auction, error) {
	if addr == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "auction address is zero")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "bank is required")
	}
	payment, err := bank.Token(cfg.PaymentToken)
	if err != nil {
		return nil, err
	}
	if cfg.PaymentReceiver == (common.Address{}) {
		cfg.PaymentReceiver = token.DeadAddress
	}
	return &Auction{
		addr:    addr,
		cfg:     cfg,
		params:  cfg.Pricing(),
		bank:    bank,
		payment: payment,
		emitter: engine.Deferred(bank, emitter),
		epoch:   pricing.Epoch{InitPrice: cfg.InitPrice.Clone(), StartTime: start},
	}, nil
}

// Buy pays the current price from tx.From and moves the auction's full
// balance of every listed asset to receiver. Returns the payment.
func (a *Auction) Buy(tx engine.Tx, assets []common.Address, receiver common.Address, epochID, deadline uint64, maxPayment *uint256.Int) (*uint256.Int, error) {
	if err := a.guard.Enter(a.addr.Hex()); err != nil {
		return nil, err
	}
	defer a.guard.Exit()

	now := tx.Time
	if now > deadline {
		return nil, a.fail(engine.NewError(engine.ErrCodeDeadlinePassed, "block time %d past deadline %d", now, deadline))
	}
	if len(assets) == 0 {
		return nil, a.fail(engine.NewError(engine.ErrCodeEmptyAssets, "no assets listed"))
	}
	if receiver == (common.Address{}) {
		return nil, a.fail(engine.NewError(engine.ErrCodeZeroAddress, "receiver is zero"))
	}
	if epochID != a.epoch.ID {
		return nil, a.fail(engine.NewError(engine.ErrCodeEpochMismatch, "epoch is %d, not %d", a.epoch.ID, epochID))
	}
	price := a.epoch.Price(a.params.EpochPeriod, now)
	if maxPayment == nil || price.Gt(maxPayment) {
		return nil, a.fail(engine.NewError(engine.ErrCodeMaxPriceExceeded, "price %s above max %s", price.Dec(), dec(maxPayment)))
	}

	moved := make(ir.IRArray, 0, len(assets))
	err := a.bank.Atomic(func() error {
		if !price.IsZero() {
			if err := a.payment.TransferFrom(a.addr, tx.From, a.cfg.PaymentReceiver, price); err != nil {
				return err
			}
		}
		for _, asset := range assets {
			l, err := a.bank.Token(asset)
			if err != nil {
				return err
			}
			bal := l.BalanceOf(a.addr)
			if !bal.IsZero() {
				if err := l.Transfer(a.addr, receiver, bal); err != nil {
					return err
				}
			}
			moved = append(moved, ir.IRObject{"asset": ir.Address(asset), "amount": ir.Amount(bal)})
		}
		return nil
	})
	if err != nil {
		return nil, a.fail(err)
	}

	prev, before := a.epoch.ID, a.epoch
	a.bank.Journal(func() { a.epoch = before })
	a.epoch = a.epoch.Advance(price, a.params, now)

	var buf engine.Buffer
	buf.Add(ir.KindAuctionBuy, ir.IRObject{
		"buyer":           ir.Address(tx.From),
		"receiver":        ir.Address(receiver),
		"payment":         ir.Amount(price),
		"payment_to":      ir.Address(a.cfg.PaymentReceiver),
		"epoch_id":        ir.Uint(prev),
		"next_init_price": ir.Amount(a.epoch.InitPrice),
		"assets":          moved,
	})
	buf.Flush(a.emitter, tx, a.addr)

	slog.Debug("auction bought", "auction", a.addr.Hex(), "epoch", prev, "price", price.Dec(), "assets", len(assets))
	return price, nil
}

// Address returns the auction address. Assets accrue by transfer to it.
func (a *Auction) Address() common.Address { return a.addr }

// Config returns the configuration, with the resolved payment receiver.
func (a *Auction) Config() Config { return a.cfg }

// Epoch returns the current epoch.
func (a *Auction) Epoch() pricing.Epoch {
	return pricing.Epoch{ID: a.epoch.ID, InitPrice: a.epoch.InitPrice.Clone(), StartTime: a.epoch.StartTime}
}

// Price returns the current price at now.
func (a *Auction) Price(now uint64) *uint256.Int {
	return a.epoch.Price(a.params.EpochPeriod, now)
}

func (a *Auction) fail(err error) error {
	return engine.Attribute(err, a.addr.Hex())
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
