// Package mine implements the Mine rig: an array of independently priced
// slots. Mining a slot buys it at the current Dutch-auction price, mints the
// previous holder its accrued emission, and credits the previous holder 80%
// of the price as a pull-claimable balance.
package mine

import (
	"log/slog"
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

// Slot is the state of one mining position. The zero Slot is an unmined
// slot at epoch 0 with price 0.
type Slot struct {
	Index            uint64
	EpochID          uint64
	InitPrice        *uint256.Int
	StartTime        uint64
	Ups              *uint256.Int
	UpsMultiplier    *uint256.Int
	MultiplierExpiry uint64
	Miner            common.Address
	URI              string
}

func (s *Slot) clone() Slot {
	c := *s
	c.InitPrice = s.InitPrice.Clone()
	c.Ups = s.Ups.Clone()
	c.UpsMultiplier = s.UpsMultiplier.Clone()
	return c
}

// draw is an outstanding multiplier request.
type draw struct {
	index   uint64
	epochID uint64
}

// Deps are the collaborators a rig settles against.
type Deps struct {
	Bank  *token.Bank
	Quote *token.Ledger // payment token
	Unit  *token.Ledger // emitted token; the rig becomes a minter

	// Oracle is required while randomness is enabled.
	Oracle vrf.Oracle

	// Protocol supplies the protocol fee address; nil disables it.
	Protocol fees.Protocol

	// Emitter receives committed events; nil discards them.
	Emitter engine.Emitter
}

// Rig is a Mine rig.
//
// Thread-safety: not safe for concurrent use. Calls are serialized by the
// hosting engine.Chain.
type Rig struct {
	addr     common.Address
	cfg      Config
	params   pricing.Params
	schedule emission.SupplySchedule
	deps     Deps
	guard    engine.Guard

	capacity    uint64
	randomness  bool
	totalMinted *uint256.Int
	slots       map[uint64]*Slot
	claimable   map[common.Address]*uint256.Int
	pending     map[uint64]draw
}

// New creates a Mine rig at addr.
func New(addr common.Address, cfg Config, deps Deps) (*Rig, error) {
	if addr == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "rig address is zero")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Bank == nil || deps.Quote == nil || deps.Unit == nil {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "bank, quote and unit tokens are required")
	}
	if cfg.RandomnessEnabled && deps.Oracle == nil {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "randomness enabled without an oracle")
	}
	deps.Emitter = engine.Deferred(deps.Bank, deps.Emitter)
	cfg.UpsMultipliers = cloneAll(cfg.UpsMultipliers)
	deps.Unit.AddMinter(addr)

	return &Rig{
		addr:        addr,
		cfg:         cfg,
		params:      cfg.Pricing(),
		schedule:    cfg.Schedule(),
		deps:        deps,
		capacity:    cfg.Capacity,
		randomness:  cfg.RandomnessEnabled,
		totalMinted: new(uint256.Int),
		slots:       make(map[uint64]*Slot),
		claimable:   make(map[common.Address]*uint256.Int),
		pending:     make(map[uint64]draw),
	}, nil
}

// Mine buys slot index for miner at the current price and returns the price
// paid. The payment is pulled from tx.From.
//
// epochID, deadline and maxPrice protect the caller from front-running: the
// call fails unless the slot is still in epochID, the block time is at most
// deadline and the price is at most maxPrice.
func (r *Rig) Mine(tx engine.Tx, miner common.Address, index, epochID, deadline uint64, maxPrice *uint256.Int, uri string) (*uint256.Int, error) {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return nil, err
	}
	defer r.guard.Exit()

	now := tx.Time
	if now > deadline {
		return nil, r.fail(engine.NewError(engine.ErrCodeDeadlinePassed, "block time %d past deadline %d", now, deadline))
	}
	if miner == (common.Address{}) {
		return nil, r.fail(engine.NewError(engine.ErrCodeZeroMiner, "miner is zero"))
	}
	if index >= r.capacity {
		return nil, r.fail(engine.NewError(engine.ErrCodeIndexOutOfBounds, "slot %d not below capacity %d", index, r.capacity))
	}
	slot := r.slot(index)
	if epochID != slot.EpochID {
		return nil, r.fail(engine.NewError(engine.ErrCodeEpochMismatch, "slot %d is at epoch %d, not %d", index, slot.EpochID, epochID))
	}
	price := pricing.Price(slot.InitPrice, slot.StartTime, r.params.EpochPeriod, now)
	if maxPrice == nil || price.Gt(maxPrice) {
		return nil, r.fail(engine.NewError(engine.ErrCodeMaxPriceExceeded, "price %s above max %s", price.Dec(), dec(maxPrice)))
	}

	expired := now >= slot.MultiplierExpiry
	needDraw := r.randomness && expired
	var drawFee *uint256.Int
	if needDraw {
		drawFee = r.deps.Oracle.Fee()
		if tx.ValueOrZero().Lt(drawFee) {
			return nil, r.fail(engine.NewError(engine.ErrCodeInsufficientFee, "draw fee %s, sent %s", drawFee.Dec(), tx.ValueOrZero().Dec()))
		}
	}

	prev := slot.Miner
	minted := new(uint256.Int)
	if prev != (common.Address{}) {
		var err error
		var elapsed uint64
		if now > slot.StartTime {
			elapsed = now - slot.StartTime
		}
		minted, err = accrued(elapsed, slot.Ups, slot.UpsMultiplier)
		if err != nil {
			return nil, r.fail(err)
		}
	}
	newTotal, overflow := new(uint256.Int).AddOverflow(r.totalMinted, minted)
	if overflow {
		return nil, r.fail(engine.NewError(engine.ErrCodeOverflow, "total minted overflow"))
	}

	alloc, err := fees.Mine(price, prev, r.cfg.Treasury, r.cfg.Team, fees.ProtocolAddress(r.deps.Protocol))
	if err != nil {
		return nil, r.fail(err)
	}
	minerShare := alloc.Get(fees.NameMiner)
	var claimable *uint256.Int
	if !minerShare.IsZero() {
		claimable, overflow = new(uint256.Int).AddOverflow(r.claimableOf(prev), minerShare)
		if overflow {
			return nil, r.fail(engine.NewError(engine.ErrCodeOverflow, "claimable overflow"))
		}
	}

	var seq uint64
	err = r.deps.Bank.Atomic(func() error {
		if err := fees.Pay(r.deps.Quote, r.addr, tx.From, alloc, fees.NameMiner); err != nil {
			return err
		}
		if !minted.IsZero() {
			if err := r.deps.Unit.Mint(r.addr, prev, minted); err != nil {
				return err
			}
		}
		if needDraw {
			// Last step: an oracle without a journal cannot take a request back.
			s, err := r.deps.Oracle.Request(r, drawFee)
			if err != nil {
				return err
			}
			seq = s
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	// Commit.
	before, prevTotal := slot.clone(), r.totalMinted
	prevClaim, hadClaim := r.claimable[prev]
	r.deps.Bank.Journal(func() {
		*slot = before
		r.totalMinted = prevTotal
		engine.Restore(r.claimable, prev, prevClaim, hadClaim)
		if needDraw {
			delete(r.pending, seq)
		}
	})
	r.totalMinted = newTotal
	if claimable != nil {
		r.claimable[prev] = claimable
	}
	globalUps := r.schedule.Ups(r.totalMinted)
	slot.EpochID++
	slot.InitPrice = r.params.Next(price)
	slot.StartTime = now
	slot.Ups = new(uint256.Int).Div(globalUps, uint256.NewInt(r.capacity))
	slot.Miner = miner
	slot.URI = uri
	if expired {
		slot.UpsMultiplier = One.Clone()
	}
	if needDraw {
		r.pending[seq] = draw{index: index, epochID: slot.EpochID}
	}

	var buf engine.Buffer
	base := ir.IRObject{"slot": ir.Uint(index), "epoch_id": ir.Uint(epochID)}
	if !minted.IsZero() {
		buf.Add(ir.KindMineMinted, with(base, ir.IRObject{"miner": ir.Address(prev), "amount": ir.Amount(minted)}))
	}
	for _, rec := range alloc.Records(base) {
		buf.Add(rec.Kind, rec.Fields)
	}
	if needDraw {
		buf.Add(ir.KindMineEntropyRequest, with(base, ir.IRObject{"seq": ir.Uint(seq), "fee": ir.Amount(drawFee)}))
	}
	buf.Add(ir.KindMineMined, with(base, ir.IRObject{
		"miner":           ir.Address(miner),
		"prev_miner":      ir.Address(prev),
		"price":           ir.Amount(price),
		"next_epoch_id":   ir.Uint(slot.EpochID),
		"next_init_price": ir.Amount(slot.InitPrice),
		"ups":             ir.Amount(slot.Ups),
		"uri":             ir.IRString(uri),
	}))
	buf.Flush(r.deps.Emitter, tx, r.addr)

	slog.Debug("slot mined",
		"rig", r.addr.Hex(),
		"slot", index,
		"epoch_id", epochID,
		"price", price.Dec(),
		"minted", minted.Dec(),
	)
	return price, nil
}

// Fulfill receives a multiplier draw from the oracle. A draw for a slot
// that has been mined again since the request is consumed and discarded.
func (r *Rig) Fulfill(tx engine.Tx, seq uint64, random *uint256.Int) error {
	if r.deps.Oracle == nil || tx.From != r.deps.Oracle.Address() {
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
	delete(r.pending, seq)
	slot := r.slot(d.index)
	before := slot.clone()
	r.deps.Bank.Journal(func() {
		r.pending[seq] = d
		*slot = before
	})

	var buf engine.Buffer
	base := ir.IRObject{"slot": ir.Uint(d.index), "epoch_id": ir.Uint(d.epochID), "seq": ir.Uint(seq)}
	if slot.EpochID != d.epochID || len(r.cfg.UpsMultipliers) == 0 {
		slog.Warn("stale multiplier draw discarded",
			"rig", r.addr.Hex(),
			"seq", seq,
			"slot", d.index,
			"requested_epoch", d.epochID,
			"current_epoch", slot.EpochID,
		)
		buf.Add(ir.KindMineDrawDiscarded, base)
		buf.Flush(r.deps.Emitter, tx, r.addr)
		return nil
	}

	i := new(uint256.Int).Mod(random, uint256.NewInt(uint64(len(r.cfg.UpsMultipliers)))).Uint64()
	slot.UpsMultiplier = r.cfg.UpsMultipliers[i].Clone()
	slot.MultiplierExpiry = tx.Time + r.cfg.MultiplierDuration

	buf.Add(ir.KindMineMultiplierSet, with(base, ir.IRObject{
		"multiplier": ir.Amount(slot.UpsMultiplier),
		"expiry":     ir.Uint(slot.MultiplierExpiry),
	}))
	buf.Flush(r.deps.Emitter, tx, r.addr)
	slog.Debug("ups multiplier set", "rig", r.addr.Hex(), "slot", d.index, "multiplier", slot.UpsMultiplier.Dec())
	return nil
}

// Claim pays account its accrued miner fees. Anyone may trigger it.
func (r *Rig) Claim(tx engine.Tx, account common.Address) (*uint256.Int, error) {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return nil, err
	}
	defer r.guard.Exit()

	amount := r.claimableOf(account)
	if amount.IsZero() {
		return nil, r.fail(engine.NewError(engine.ErrCodeNothingToClaim, "%s has nothing to claim", account.Hex()))
	}
	if err := r.deps.Bank.Atomic(func() error {
		return r.deps.Quote.Transfer(r.addr, account, amount)
	}); err != nil {
		return nil, r.fail(err)
	}
	delete(r.claimable, account)
	r.deps.Bank.Journal(func() { r.claimable[account] = amount })

	r.deps.Emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindMineClaimed, Fields: ir.IRObject{
		"account": ir.Address(account),
		"amount":  ir.Amount(amount),
	}})
	return amount.Clone(), nil
}

// SetCapacity raises the number of slots. Per-slot ups of existing slots
// is re-divided on their next mine.
func (r *Rig) SetCapacity(tx engine.Tx, capacity uint64) error {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return err
	}
	defer r.guard.Exit()
	if err := r.cfg.RequireOwner(tx); err != nil {
		return r.fail(err)
	}
	if capacity < r.capacity {
		return r.fail(engine.NewError(engine.ErrCodeCapacityDecrease, "capacity %d below current %d", capacity, r.capacity))
	}
	if capacity > MaxCapacity {
		return r.fail(engine.NewError(engine.ErrCodeInvalidCapacity, "capacity %d above %d", capacity, MaxCapacity))
	}
	prev := r.capacity
	r.deps.Bank.Journal(func() { r.capacity = prev })
	r.capacity = capacity
	r.deps.Emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindMineCapacitySet, Fields: ir.IRObject{
		"capacity": ir.Uint(capacity),
	}})
	return nil
}

// SetRandomnessEnabled toggles multiplier draws.
func (r *Rig) SetRandomnessEnabled(tx engine.Tx, enabled bool) error {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return err
	}
	defer r.guard.Exit()
	if err := r.cfg.RequireOwner(tx); err != nil {
		return r.fail(err)
	}
	if enabled {
		if r.deps.Oracle == nil {
			return r.fail(engine.NewError(engine.ErrCodeZeroAddress, "no oracle configured"))
		}
		if err := validateMultipliers(r.cfg.UpsMultipliers, true); err != nil {
			return r.fail(err)
		}
	}
	prev := r.randomness
	r.deps.Bank.Journal(func() { r.randomness = prev })
	r.randomness = enabled
	r.deps.Emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindMineRandomnessSet, Fields: ir.IRObject{
		"enabled": ir.IRBool(enabled),
	}})
	return nil
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
	c.Capacity = r.capacity
	c.RandomnessEnabled = r.randomness
	c.UpsMultipliers = cloneAll(r.cfg.UpsMultipliers)
	return c
}

// Capacity returns the number of slots.
func (r *Rig) Capacity() uint64 { return r.capacity }

// RandomnessEnabled reports whether mines request multiplier draws.
func (r *Rig) RandomnessEnabled() bool { return r.randomness }

// TotalMinted returns the emission minted so far.
func (r *Rig) TotalMinted() *uint256.Int { return r.totalMinted.Clone() }

// Ups returns the current global emission rate.
func (r *Rig) Ups() *uint256.Int { return r.schedule.Ups(r.totalMinted) }

// Slot returns a copy of slot index.
func (r *Rig) Slot(index uint64) (Slot, error) {
	if index >= r.capacity {
		return Slot{}, engine.NewError(engine.ErrCodeIndexOutOfBounds, "slot %d not below capacity %d", index, r.capacity)
	}
	if s, ok := r.slots[index]; ok {
		return s.clone(), nil
	}
	return emptySlot(index), nil
}

// Price returns the price of slot index at now.
func (r *Rig) Price(index, now uint64) (*uint256.Int, error) {
	s, err := r.Slot(index)
	if err != nil {
		return nil, err
	}
	return pricing.Price(s.InitPrice, s.StartTime, r.params.EpochPeriod, now), nil
}

// PendingMint returns what the current holder of slot index would be
// minted if the slot were mined at now.
func (r *Rig) PendingMint(index, now uint64) (*uint256.Int, error) {
	s, err := r.Slot(index)
	if err != nil {
		return nil, err
	}
	if s.Miner == (common.Address{}) || now <= s.StartTime {
		return new(uint256.Int), nil
	}
	return accrued(now-s.StartTime, s.Ups, s.UpsMultiplier)
}

// Claimable returns account's unclaimed miner fees.
func (r *Rig) Claimable(account common.Address) *uint256.Int {
	return r.claimableOf(account).Clone()
}

// TotalClaimable sums every unclaimed balance. It equals the rig's quote
// token balance.
func (r *Rig) TotalClaimable() *uint256.Int {
	total := new(uint256.Int)
	for _, v := range r.claimable {
		total.Add(total, v)
	}
	return total
}

// Claimants returns every account with a claimable balance, sorted.
func (r *Rig) Claimants() []common.Address {
	out := make([]common.Address, 0, len(r.claimable))
	for a := range r.claimable {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Pending returns outstanding draw sequence numbers, ascending.
func (r *Rig) Pending() []uint64 {
	out := make([]uint64, 0, len(r.pending))
	for seq := range r.pending {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// slot returns the live slot, creating it on first use.
func (r *Rig) slot(index uint64) *Slot {
	s, ok := r.slots[index]
	if !ok {
		e := emptySlot(index)
		s = &e
		r.slots[index] = s
	}
	return s
}

func (r *Rig) claimableOf(account common.Address) *uint256.Int {
	if v, ok := r.claimable[account]; ok {
		return v
	}
	return new(uint256.Int)
}

func (r *Rig) fail(err error) error {
	return engine.Attribute(err, r.addr.Hex())
}

func emptySlot(index uint64) Slot {
	return Slot{
		Index:         index,
		InitPrice:     new(uint256.Int),
		Ups:           new(uint256.Int),
		UpsMultiplier: One.Clone(),
	}
}

// accrued returns elapsed * ups * multiplier / 1e18.
func accrued(elapsed uint64, ups, multiplier *uint256.Int) (*uint256.Int, error) {
	base, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(elapsed), ups)
	if overflow {
		return nil, engine.NewError(engine.ErrCodeOverflow, "emission overflow")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(base, multiplier, pricing.Precision)
	if overflow {
		return nil, engine.NewError(engine.ErrCodeOverflow, "emission overflow")
	}
	return out, nil
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

func cloneAll(xs []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(xs))
	for i, x := range xs {
		out[i] = x.Clone()
	}
	return out
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "<nil>"
	}
	return x.Dec()
}
