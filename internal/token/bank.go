package token

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// Bank holds every token ledger and the journal that makes a group of
// transfers all-or-nothing. Rigs add their own state writes to the same
// journal (see engine.Journal).
type Bank struct {
	ledgers map[common.Address]*Ledger
	order   []common.Address
	journal []entry
	depth   int
}

// entry is one journal step: an undo, or an effect held until commit.
type entry struct {
	undo   func()
	commit func()
}

var _ engine.Journal = (*Bank)(nil)

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{ledgers: make(map[common.Address]*Ledger)}
}

// Deploy creates a token at addr.
func (b *Bank) Deploy(addr common.Address, name, symbol string) (*Ledger, error) {
	if addr == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "token address is zero")
	}
	if name == "" || symbol == "" {
		return nil, engine.NewError(engine.ErrCodeEmptyName, "token name and symbol are required")
	}
	if _, ok := b.ledgers[addr]; ok {
		return nil, engine.NewError(engine.ErrCodeAlreadyRegistered, "token %s already deployed", addr.Hex())
	}
	l := &Ledger{
		addr:       addr,
		name:       name,
		symbol:     symbol,
		bank:       b,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		minters:    make(map[common.Address]bool),
	}
	b.ledgers[addr] = l
	b.order = append(b.order, addr)
	slog.Debug("token deployed", "address", addr.Hex(), "symbol", symbol)
	return l, nil
}

// Token returns the ledger at addr.
func (b *Bank) Token(addr common.Address) (*Ledger, error) {
	l, ok := b.ledgers[addr]
	if !ok {
		return nil, engine.NewError(engine.ErrCodeUnknownToken, "no token at %s", addr.Hex())
	}
	return l, nil
}

// Tokens returns every ledger in deployment order.
func (b *Bank) Tokens() []*Ledger {
	out := make([]*Ledger, len(b.order))
	for i, a := range b.order {
		out[i] = b.ledgers[a]
	}
	return out
}

// Snapshot returns a journal position to revert to.
func (b *Bank) Snapshot() int {
	return len(b.journal)
}

// RevertToSnapshot undoes every change recorded after id.
func (b *Bank) RevertToSnapshot(id int) {
	for i := len(b.journal) - 1; i >= id; i-- {
		if undo := b.journal[i].undo; undo != nil {
			undo()
		}
		b.journal[i] = entry{}
	}
	b.journal = b.journal[:id]
}

// Atomic runs fn. If fn fails, every balance, allowance and supply change it
// made is undone, together with every journaled rig write, and its error
// returned. Calls nest; effects registered with OnCommit run in order once
// the outermost call commits.
func (b *Bank) Atomic(fn func() error) error {
	id := b.Snapshot()
	b.depth++
	err := fn()
	b.depth--
	if err != nil {
		b.RevertToSnapshot(id)
		return err
	}
	if b.depth == 0 {
		// Outermost call committed; nothing can revert past it.
		committed := b.journal
		b.journal = nil
		for _, e := range committed {
			if e.commit != nil {
				e.commit()
			}
		}
	}
	return nil
}

// Journal implements engine.Journal. Outside Atomic nothing can revert the
// write, so undo is not kept.
func (b *Bank) Journal(undo func()) {
	if undo == nil || b.depth == 0 {
		return
	}
	b.record(undo)
}

// OnCommit implements engine.Journal.
func (b *Bank) OnCommit(fn func()) {
	if fn == nil {
		return
	}
	if b.depth == 0 {
		fn()
		return
	}
	b.journal = append(b.journal, entry{commit: fn})
}

func (b *Bank) record(undo func()) {
	b.journal = append(b.journal, entry{undo: undo})
}
