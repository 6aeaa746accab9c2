// Package fund implements the Fund rig: daily donation pools. Each day
// emits a fixed amount of unit tokens, shared among that day's donors in
// proportion to what they gave. Donations are forwarded immediately; the
// rig never holds a quote balance.
package fund

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/emission"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/fees"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/token"
)

// Deps are the collaborators a rig settles against.
type Deps struct {
	Bank     *token.Bank
	Quote    *token.Ledger
	Unit     *token.Ledger // reward token; the rig becomes a minter
	Protocol fees.Protocol
	Emitter  engine.Emitter
}

type dayPool struct {
	total     *uint256.Int
	donations map[common.Address]*uint256.Int
	claimed   map[common.Address]bool
}

// Rig is a Fund rig.
type Rig struct {
	addr     common.Address
	cfg      Config
	schedule emission.DaySchedule
	deps     Deps
	guard    engine.Guard
	start    uint64
	days     map[uint64]*dayPool
}

// New creates a Fund rig at addr whose day 0 begins at start.
func New(addr common.Address, cfg Config, deps Deps, start uint64) (*Rig, error) {
	if addr == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "rig address is zero")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Bank == nil || deps.Quote == nil || deps.Unit == nil {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "bank, quote and unit tokens are required")
	}
	deps.Emitter = engine.Deferred(deps.Bank, deps.Emitter)
	deps.Unit.AddMinter(addr)
	return &Rig{
		addr:     addr,
		cfg:      cfg,
		schedule: cfg.Schedule(),
		deps:     deps,
		start:    start,
		days:     make(map[uint64]*dayPool),
	}, nil
}

// Fund donates amount from tx.From on behalf of account for the current
// day. The amount is split at once: 50% recipient, 4% team, 1% protocol,
// the rest to treasury.
func (r *Rig) Fund(tx engine.Tx, account common.Address, amount *uint256.Int, uri string) error {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return err
	}
	defer r.guard.Exit()

	if account == (common.Address{}) {
		return r.fail(engine.NewError(engine.ErrCodeZeroAddress, "account is zero"))
	}
	if amount == nil || amount.Lt(MinDonation) {
		return r.fail(engine.NewError(engine.ErrCodeBelowMinDonation, "donation %s below %s", dec(amount), MinDonation.Dec()))
	}
	day := r.CurrentDay(tx.Time)
	pool := r.days[day]
	total, donation := new(uint256.Int), new(uint256.Int)
	if pool != nil {
		total.Set(pool.total)
		if d, ok := pool.donations[account]; ok {
			donation.Set(d)
		}
	}
	if _, overflow := total.AddOverflow(total, amount); overflow {
		return r.fail(engine.NewError(engine.ErrCodeOverflow, "day total overflow"))
	}
	donation.Add(donation, amount) // bounded by total

	alloc, err := fees.Fund(amount, r.cfg.Recipient, r.cfg.Treasury, r.cfg.Team, fees.ProtocolAddress(r.deps.Protocol))
	if err != nil {
		return r.fail(err)
	}
	if err := r.deps.Bank.Atomic(func() error {
		return fees.Pay(r.deps.Quote, r.addr, tx.From, alloc)
	}); err != nil {
		return r.fail(err)
	}

	// Commit.
	if pool == nil {
		pool = &dayPool{
			total:     new(uint256.Int),
			donations: make(map[common.Address]*uint256.Int),
			claimed:   make(map[common.Address]bool),
		}
		r.days[day] = pool
		r.deps.Bank.Journal(func() { delete(r.days, day) })
	}
	prevTotal := pool.total
	prevDonation, had := pool.donations[account]
	r.deps.Bank.Journal(func() {
		pool.total = prevTotal
		engine.Restore(pool.donations, account, prevDonation, had)
	})
	pool.total = total
	pool.donations[account] = donation

	var buf engine.Buffer
	base := ir.IRObject{"day": ir.Uint(day)}
	buf.Add(ir.KindFundFunded, with(base, ir.IRObject{
		"account": ir.Address(account),
		"amount":  ir.Amount(amount),
		"uri":     ir.IRString(uri),
	}))
	for _, rec := range alloc.Records(base) {
		buf.Add(rec.Kind, rec.Fields)
	}
	buf.Flush(r.deps.Emitter, tx, r.addr)

	slog.Debug("funded", "rig", r.addr.Hex(), "day", day, "account", account.Hex(), "amount", amount.Dec())
	return nil
}

// Claim mints account its share of day's emission:
// donation * emission(day) / total. The day must have ended.
func (r *Rig) Claim(tx engine.Tx, account common.Address, day uint64) (*uint256.Int, error) {
	return r.ClaimMany(tx, account, []uint64{day})
}

// ClaimMany claims several days at once. Either every day is claimed or
// none is.
func (r *Rig) ClaimMany(tx engine.Tx, account common.Address, days []uint64) (*uint256.Int, error) {
	if err := r.guard.Enter(r.addr.Hex()); err != nil {
		return nil, err
	}
	defer r.guard.Exit()

	if len(days) == 0 {
		return nil, r.fail(engine.NewError(engine.ErrCodeNothingToClaim, "no days given"))
	}
	current := r.CurrentDay(tx.Time)
	rewards := make([]*uint256.Int, len(days))
	seen := make(map[uint64]bool, len(days))
	total := new(uint256.Int)
	for i, day := range days {
		if day >= current {
			return nil, r.fail(engine.NewError(engine.ErrCodeDayNotEnded, "day %d has not ended (current %d)", day, current))
		}
		pool := r.days[day]
		if pool == nil || pool.donations[account] == nil {
			return nil, r.fail(engine.NewError(engine.ErrCodeNoDonation, "%s made no donation on day %d", account.Hex(), day))
		}
		if pool.claimed[account] || seen[day] {
			return nil, r.fail(engine.NewError(engine.ErrCodeAlreadyClaimed, "day %d already claimed by %s", day, account.Hex()))
		}
		seen[day] = true
		rewards[i] = reward(pool.donations[account], r.schedule.Emission(day), pool.total)
		if _, overflow := total.AddOverflow(total, rewards[i]); overflow {
			return nil, r.fail(engine.NewError(engine.ErrCodeOverflow, "claim total overflow"))
		}
	}

	if !total.IsZero() {
		if err := r.deps.Bank.Atomic(func() error {
			return r.deps.Unit.Mint(r.addr, account, total)
		}); err != nil {
			return nil, r.fail(err)
		}
	}

	r.deps.Bank.Journal(func() {
		for _, day := range days {
			delete(r.days[day].claimed, account)
		}
	})
	var buf engine.Buffer
	for i, day := range days {
		r.days[day].claimed[account] = true
		buf.Add(ir.KindFundClaimed, ir.IRObject{
			"day":     ir.Uint(day),
			"account": ir.Address(account),
			"amount":  ir.Amount(rewards[i]),
		})
	}
	buf.Flush(r.deps.Emitter, tx, r.addr)
	return total, nil
}

// SetRecipient replaces the donation recipient. It cannot be zero.
func (r *Rig) SetRecipient(tx engine.Tx, recipient common.Address) error {
	return r.admin(tx, func(buf *engine.Buffer) error {
		if err := r.cfg.RequireOwner(tx); err != nil {
			return err
		}
		if recipient == (common.Address{}) {
			return engine.NewError(engine.ErrCodeZeroAddress, "recipient is zero")
		}
		r.cfg.Recipient = recipient
		buf.Add(ir.KindFundRecipient, ir.IRObject{"recipient": ir.Address(recipient)})
		return nil
	})
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
func (r *Rig) Config() Config { return r.cfg }

// Start returns the beginning of day 0.
func (r *Rig) Start() uint64 { return r.start }

// CurrentDay returns (now - start) / 86400.
func (r *Rig) CurrentDay(now uint64) uint64 {
	if now <= r.start {
		return 0
	}
	return (now - r.start) / SecondsPerDay
}

// DayEmission returns the emission shared by day's donors.
func (r *Rig) DayEmission(day uint64) *uint256.Int { return r.schedule.Emission(day) }

// DayTotal returns the total donated on day.
func (r *Rig) DayTotal(day uint64) *uint256.Int {
	if p := r.days[day]; p != nil {
		return p.total.Clone()
	}
	return new(uint256.Int)
}

// Donation returns account's donation on day.
func (r *Rig) Donation(day uint64, account common.Address) *uint256.Int {
	if p := r.days[day]; p != nil {
		if d, ok := p.donations[account]; ok {
			return d.Clone()
		}
	}
	return new(uint256.Int)
}

// Donors returns the number of accounts that donated on day.
func (r *Rig) Donors(day uint64) int {
	if p := r.days[day]; p != nil {
		return len(p.donations)
	}
	return 0
}

// Claimed reports whether account claimed day.
func (r *Rig) Claimed(day uint64, account common.Address) bool {
	if p := r.days[day]; p != nil {
		return p.claimed[account]
	}
	return false
}

// PendingReward returns what account could claim for day once it ends;
// zero if already claimed or nothing was donated.
func (r *Rig) PendingReward(day uint64, account common.Address) *uint256.Int {
	p := r.days[day]
	if p == nil || p.claimed[account] || p.donations[account] == nil {
		return new(uint256.Int)
	}
	return reward(p.donations[account], r.schedule.Emission(day), p.total)
}

func (r *Rig) fail(err error) error {
	return engine.Attribute(err, r.addr.Hex())
}

// reward returns donation * dayEmission / total, floored.
func reward(donation, dayEmission, total *uint256.Int) *uint256.Int {
	// donation <= total, so the quotient never exceeds dayEmission.
	out, _ := new(uint256.Int).MulDivOverflow(donation, dayEmission, total)
	return out
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
