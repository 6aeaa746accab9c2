// Package spin implements the Spin rig: a slot machine over a prize pool.
//
// Every spin first mints the emission accrued since the last spin into the
// pool, then charges the Dutch-auction price and requests a draw. The draw
// resolves later and pays a fraction of whatever the pool holds at that
// moment.
package spin

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/emission"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/fees"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/pricing"
	"github.com/roach88/rigs/internal/token"
	"github.com/roach88/rigs/internal/vrf"
)

// Draw is an unresolved spin.
type Draw struct {
	Spinner common.Address
	EpochID uint64
}

// Deps are the collaborators a rig settles against.
type Deps struct {
	Bank     *token.Bank
	Quote    *token.Ledger
	Unit     *token.Ledger // prize token; the rig becomes a minter
	Oracle   vrf.Oracle
	Protocol fees.Protocol
	Emitter  engine.Emitter
}

// Rig is a Spin rig. The pool is the rig's own unit-token balance.
type Rig struct {
	addr     common.Address
	cfg      Config
	params   pricing.Params
	schedule emission.TimeSchedule
	deps     Deps
	guard    engine.Guard

	epoch        pricing.Epoch
	lastEmission uint64
	pending      map[uint64]Draw
}

// New creates a Spin rig at addr whose first epoch and emission start at
// start.
func New(addr common.Address, cfg Config, deps Deps, start uint64) (*Rig, error) {
	if addr == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "rig address is zero")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Bank == nil || deps.Quote == nil || deps.Unit == nil || deps.Oracle == nil {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "bank, tokens and oracle are required")
	}
	deps.Emitter = engine.Deferred(deps.Bank, deps.Emitter)
	cfg.Odds = slices.Clone(cfg.Odds)
	initPrice := cfg.MinInitPrice.Clone()
	if cfg.InitPrice != nil {
		initPrice = cfg.InitPrice.Clone()
	}
	deps.Unit.AddMinter(addr)

	return &Rig{
		addr:         addr,
		cfg:          cfg,
		params:       cfg.Pricing(),
		schedule:     cfg.Schedule(start),
		deps:         deps,
		epoch:        pricing.Epoch{InitPrice: initPrice, StartTime: start},
		lastEmission: start,
		pending:      make(map[uint64]Draw),
	}, nil
}

// Spin pays the current price from tx.From and requests a draw for
// spinner. tx.Value must cover the oracle fee. Returns the price paid.
func (r *Rig) Spin(tx engine.Tx, spinner common.Address, epochID, deadline uint64, maxPrice *uint256.Int) (*uint256.Int, error) {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return nil, err
	}
	defer r.guard.Exit()

	now := tx.Time
	if now > deadline {
		return nil, r.fail(engine.NewError(engine.ErrCodeDeadlinePassed, "block time %d past deadline %d", now, deadline))
	}
	if spinner == (common.Address{}) {
		return nil, r.fail(engine.NewError(engine.ErrCodeZeroSpinner, "spinner is zero"))
	}
	if epochID != r.epoch.ID {
		return nil, r.fail(engine.NewError(engine.ErrCodeEpochMismatch, "epoch is %d, not %d", r.epoch.ID, epochID))
	}
	price := r.epoch.Price(r.params.EpochPeriod, now)
	if maxPrice == nil || price.Gt(maxPrice) {
		return nil, r.fail(engine.NewError(engine.ErrCodeMaxPriceExceeded, "price %s above max %s", price.Dec(), dec(maxPrice)))
	}
	drawFee := r.deps.Oracle.Fee()
	if tx.ValueOrZero().Lt(drawFee) {
		return nil, r.fail(engine.NewError(engine.ErrCodeInsufficientFee, "draw fee %s, sent %s", drawFee.Dec(), tx.ValueOrZero().Dec()))
	}

	emitted, err := r.PendingEmission(now)
	if err != nil {
		return nil, r.fail(err)
	}
	alloc, err := fees.Spin(price, r.cfg.Treasury, r.cfg.Team, fees.ProtocolAddress(r.deps.Protocol))
	if err != nil {
		return nil, r.fail(err)
	}

	var seq uint64
	err = r.deps.Bank.Atomic(func() error {
		if !emitted.IsZero() {
			if err := r.deps.Unit.Mint(r.addr, r.addr, emitted); err != nil {
				return err
			}
		}
		if err := fees.Pay(r.deps.Quote, r.addr, tx.From, alloc); err != nil {
			return err
		}
		s, err := r.deps.Oracle.Request(r, drawFee)
		if err != nil {
			return err
		}
		seq = s
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	// Commit.
	prevEpoch, prevEmission := r.epoch, r.lastEmission
	r.deps.Bank.Journal(func() {
		r.epoch, r.lastEmission = prevEpoch, prevEmission
		delete(r.pending, seq)
	})
	if now > r.lastEmission {
		r.lastEmission = now
	}
	r.pending[seq] = Draw{Spinner: spinner, EpochID: epochID}
	r.epoch = r.epoch.Advance(price, r.params, now)

	var buf engine.Buffer
	base := ir.IRObject{"epoch_id": ir.Uint(epochID)}
	if !emitted.IsZero() {
		buf.Add(ir.KindSpinEmission, with(base, ir.IRObject{
			"amount": ir.Amount(emitted),
			"pool":   ir.Amount(r.Pool()),
		}))
	}
	for _, rec := range alloc.Records(base) {
		buf.Add(rec.Kind, rec.Fields)
	}
	buf.Add(ir.KindSpinEntropyRequest, with(base, ir.IRObject{"seq": ir.Uint(seq), "fee": ir.Amount(drawFee)}))
	buf.Add(ir.KindSpinSpun, with(base, ir.IRObject{
		"spinner":         ir.Address(spinner),
		"price":           ir.Amount(price),
		"seq":             ir.Uint(seq),
		"next_epoch_id":   ir.Uint(r.epoch.ID),
		"next_init_price": ir.Amount(r.epoch.InitPrice),
	}))
	buf.Flush(r.deps.Emitter, tx, r.addr)

	slog.Debug("spun", "rig", r.addr.Hex(), "epoch_id", epochID, "price", price.Dec(), "seq", seq)
	return price, nil
}

// Fulfill resolves draw seq against the live pool: the payout is
// pool * odds / 10000 where odds is the configured entry at
// random mod len(odds).
func (r *Rig) Fulfill(tx engine.Tx, seq uint64, random *uint256.Int) error {
	if tx.From != r.deps.Oracle.Address() {
		return r.fail(engine.NewError(engine.ErrCodeUnauthorized, "fulfil from %s, not the oracle", tx.From.Hex()))
	}
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return err
	}
	defer r.guard.Exit()

	d, ok := r.pending[seq]
	if !ok {
		return r.fail(engine.NewError(engine.ErrCodeUnknownRequest, "no pending draw %d", seq))
	}

	odds := r.cfg.Odds[SelectOdds(random, len(r.cfg.Odds))]
	pool := r.Pool()
	payout := Payout(pool, odds)

	if !payout.IsZero() {
		if err := r.deps.Bank.Atomic(func() error {
			return r.deps.Unit.Transfer(r.addr, d.Spinner, payout)
		}); err != nil {
			return r.fail(err)
		}
	}
	delete(r.pending, seq)
	r.deps.Bank.Journal(func() { r.pending[seq] = d })

	r.deps.Emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindSpinWin, Fields: ir.IRObject{
		"seq":      ir.Uint(seq),
		"spinner":  ir.Address(d.Spinner),
		"epoch_id": ir.Uint(d.EpochID),
		"odds_bps": ir.Uint(odds),
		"pool":     ir.Amount(pool),
		"amount":   ir.Amount(payout),
	}})
	slog.Debug("draw resolved", "rig", r.addr.Hex(), "seq", seq, "odds_bps", odds, "payout", payout.Dec())
	return nil
}

// SelectOdds maps a random word to an odds position, uniformly over
// positions.
func SelectOdds(random *uint256.Int, n int) int {
	return int(new(uint256.Int).Mod(random, uint256.NewInt(uint64(n))).Uint64())
}

// Payout returns pool * oddsBps / 10000.
func Payout(pool *uint256.Int, oddsBps uint64) *uint256.Int {
	// oddsBps <= 8000, so the quotient is below pool.
	p, _ := new(uint256.Int).MulDivOverflow(pool, uint256.NewInt(oddsBps), uint256.NewInt(fees.Denominator))
	return p
}

// SetTreasury replaces the treasury.
func (r *Rig) SetTreasury(tx engine.Tx, treasury common.Address) error {
	return r.admin(tx, func(buf *engine.Buffer) error { return r.cfg.SetTreasury(tx, treasury, buf) })
}

// SetTeam replaces the team address; zero disables the team share.
func (r *Rig) SetTeam(tx engine.Tx, team common.Address) error {
	return r.admin(tx, func(buf *engine.Buffer) error { return r.cfg.SetTeam(tx, team, buf) })
}

// SetURI replaces the rig metadata URI.
func (r *Rig) SetURI(tx engine.Tx, uri string) error {
	return r.admin(tx, func(buf *engine.Buffer) error { return r.cfg.SetURI(tx, uri, buf) })
}

func (r *Rig) admin(tx engine.Tx, fn func(*engine.Buffer) error) error {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return err
	}
	defer r.guard.Exit()
	prev := r.cfg
	var buf engine.Buffer
	if err := fn(&buf); err != nil {
		return r.fail(err)
	}
	r.deps.Bank.Journal(func() { r.cfg = prev })
	buf.Flush(r.deps.Emitter, tx, r.addr)
	return nil
}

// Address returns the rig address.
func (r *Rig) Address() common.Address { return r.addr }

// Config returns the configuration with the current admin settings.
func (r *Rig) Config() Config {
	c := r.cfg
	c.Odds = slices.Clone(r.cfg.Odds)
	return c
}

// Epoch returns the current auction epoch.
func (r *Rig) Epoch() pricing.Epoch {
	e := r.epoch
	e.InitPrice = e.InitPrice.Clone()
	return e
}

// Price returns the spin price at now.
func (r *Rig) Price(now uint64) *uint256.Int {
	return r.epoch.Price(r.params.EpochPeriod, now)
}

// Ups returns the emission rate at now.
func (r *Rig) Ups(now uint64) *uint256.Int {
	return r.schedule.Ups(now)
}

// Pool returns the prize pool balance.
func (r *Rig) Pool() *uint256.Int {
	return r.deps.Unit.BalanceOf(r.addr)
}

// LastEmission returns the time emission was last minted into the pool.
func (r *Rig) LastEmission() uint64 { return r.lastEmission }

// PendingEmission returns what the next spin at now would mint into the
// pool: (now - last emission) * Ups(now).
func (r *Rig) PendingEmission(now uint64) (*uint256.Int, error) {
	if now <= r.lastEmission {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(now-r.lastEmission), r.schedule.Ups(now))
	if overflow {
		return nil, engine.NewError(engine.ErrCodeOverflow, "emission overflow")
	}
	return out, nil
}

// Odds returns the configured odds.
func (r *Rig) Odds() []uint64 { return slices.Clone(r.cfg.Odds) }

// PendingDraws returns unresolved sequence numbers, ascending.
func (r *Rig) PendingDraws() []uint64 {
	out := make([]uint64, 0, len(r.pending))
	for seq := range r.pending {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Draw returns the unresolved draw seq.
func (r *Rig) Draw(seq uint64) (Draw, bool) {
	d, ok := r.pending[seq]
	return d, ok
}

func (r *Rig) fail(err error) error {
	return engine.Attribute(err, r.addr.Hex())
}

func with(base, extra ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
