package token

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// DeadAddress is the conventional burn sink.
var DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// MaxAllowance is treated as an infinite approval.
var MaxAllowance = new(uint256.Int).SetAllOne()

// Hook observes a completed balance change. A non-nil error fails the
// transfer and everything the enclosing Atomic call did. Tests use it to
// model a token that calls back into a rig.
type Hook func(from, to common.Address, amount *uint256.Int) error

// Ledger is one fungible token.
//
// Thread-safety: not safe for concurrent use. Ledgers are driven by the
// single-writer engine.Chain loop.
type Ledger struct {
	addr   common.Address
	name   string
	symbol string
	bank   *Bank

	supply     uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	minters    map[common.Address]bool
	hook       Hook
}

// Address returns the token address.
func (l *Ledger) Address() common.Address { return l.addr }

// Name returns the token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// SetHook installs (or clears, with nil) the transfer hook.
func (l *Ledger) SetHook(h Hook) { l.hook = h }

// AddMinter authorises account to mint.
func (l *Ledger) AddMinter(account common.Address) { l.minters[account] = true }

// IsMinter reports whether account may mint.
func (l *Ledger) IsMinter(account common.Address) bool { return l.minters[account] }

// TotalSupply returns a copy of the total supply.
func (l *Ledger) TotalSupply() *uint256.Int { return l.supply.Clone() }

// BalanceOf returns a copy of account's balance.
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a.Clone()
		}
	}
	return new(uint256.Int)
}

// Holders returns every account that ever held a balance, sorted by address.
func (l *Ledger) Holders() []common.Address {
	out := make([]common.Address, 0, len(l.balances))
	for a := range l.balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return l.err(engine.ErrCodeZeroAddress, "approve to the zero address")
	}
	l.setAllowance(owner, spender, amount.Clone())
	return nil
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	return l.notify(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
// An owner moving its own tokens needs no allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if spender != from {
		allowed := l.Allowance(from, spender)
		if allowed.Lt(amount) {
			return l.err(engine.ErrCodeInsufficientAllow, "allowance %s below %s", allowed.Dec(), amount.Dec())
		}
		if !allowed.Eq(MaxAllowance) {
			l.setAllowance(from, spender, new(uint256.Int).Sub(allowed, amount))
		}
	}
	return l.Transfer(from, to, amount)
}

// Mint creates amount for to. Only registered minters may mint.
func (l *Ledger) Mint(minter, to common.Address, amount *uint256.Int) error {
	if !l.minters[minter] {
		return l.err(engine.ErrCodeUnauthorized, "%s is not a minter", minter.Hex())
	}
	if to == (common.Address{}) {
		return l.err(engine.ErrCodeZeroAddress, "mint to the zero address")
	}
	supply, overflow := new(uint256.Int).AddOverflow(&l.supply, amount)
	if overflow {
		return l.err(engine.ErrCodeOverflow, "total supply overflow")
	}
	l.setSupply(supply)
	l.setBalance(to, new(uint256.Int).Add(l.balanceRef(to), amount))
	return l.notify(common.Address{}, to, amount)
}

// Burn destroys amount of from's balance.
func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	bal := l.balanceRef(from)
	if bal.Lt(amount) {
		return l.err(engine.ErrCodeInsufficientBalance, "burn %s exceeds balance %s", amount.Dec(), bal.Dec())
	}
	l.setBalance(from, new(uint256.Int).Sub(bal, amount))
	l.setSupply(new(uint256.Int).Sub(&l.supply, amount))
	return l.notify(from, common.Address{}, amount)
}

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return l.err(engine.ErrCodeZeroAddress, "transfer to the zero address")
	}
	bal := l.balanceRef(from)
	if bal.Lt(amount) {
		return l.err(engine.ErrCodeInsufficientBalance, "transfer %s exceeds balance %s", amount.Dec(), bal.Dec())
	}
	if from == to {
		return nil
	}
	l.setBalance(from, new(uint256.Int).Sub(bal, amount))
	l.setBalance(to, new(uint256.Int).Add(l.balanceRef(to), amount))
	return nil
}

func (l *Ledger) notify(from, to common.Address, amount *uint256.Int) error {
	if l.hook == nil {
		return nil
	}
	return l.hook(from, to, amount.Clone())
}

func (l *Ledger) balanceRef(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

// setBalance, setAllowance and setSupply are the only writers. Each one
// journals the previous value.

func (l *Ledger) setBalance(account common.Address, v *uint256.Int) {
	prev, had := l.balances[account]
	l.bank.record(func() {
		if had {
			l.balances[account] = prev
		} else {
			delete(l.balances, account)
		}
	})
	l.balances[account] = v
}

func (l *Ledger) setAllowance(owner, spender common.Address, v *uint256.Int) {
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	prev, had := m[spender]
	l.bank.record(func() {
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
	})
	m[spender] = v
}

func (l *Ledger) setSupply(v *uint256.Int) {
	prev := l.supply
	l.bank.record(func() { l.supply = prev })
	l.supply = *v
}

func (l *Ledger) err(code engine.ErrorCode, format string, args ...any) error {
	return engine.NewError(code, format, args...).WithDetail("token", l.symbol)
}
