// Package fees splits a payment into basis-point shares. Every named share
// is floored; whatever is left, including the share of any disabled
// recipient, goes to the remainder recipient. The entries always sum to the
// input amount exactly.
package fees

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// Denominator is 100% in basis points.
const Denominator = 10_000

// Share names.
const (
	NameMiner     = "miner"
	NameTreasury  = "treasury"
	NameTeam      = "team"
	NameProtocol  = "protocol"
	NameRecipient = "recipient"
)

// Nominal shares in basis points. Treasury takes the remainder.
const (
	MineMinerBps     = 8_000
	TeamBps          = 400
	ProtocolBps      = 100
	FundRecipientBps = 5_000
)

// Share is one named slice of a payment. A zero Recipient disables it.
type Share struct {
	Name      string
	Recipient common.Address
	Bps       uint64
}

// Entry is one computed payout.
type Entry struct {
	Name      string
	Recipient common.Address
	Amount    *uint256.Int
}

// Allocation is the result of Split. The remainder entry is last.
type Allocation struct {
	Entries []Entry
}

// Total sums every entry.
func (a Allocation) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, e := range a.Entries {
		total.Add(total, e.Amount)
	}
	return total
}

// Get returns the amount paid under name, or zero.
func (a Allocation) Get(name string) *uint256.Int {
	for _, e := range a.Entries {
		if e.Name == name {
			return e.Amount.Clone()
		}
	}
	return new(uint256.Int)
}

// Has reports whether a share named name was paid out (possibly zero).
func (a Allocation) Has(name string) bool {
	for _, e := range a.Entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Split allocates amount: each enabled share gets amount*bps/10000 and the
// remainder share gets the rest.
func Split(amount *uint256.Int, remainder Share, shares ...Share) (Allocation, error) {
	if remainder.Recipient == (common.Address{}) {
		return Allocation{}, engine.NewError(engine.ErrCodeZeroAddress, "%s recipient is zero", remainder.Name)
	}
	var bpsSum uint64
	for _, s := range shares {
		bpsSum += s.Bps
	}
	if bpsSum >= Denominator {
		return Allocation{}, engine.NewError(engine.ErrCodeInvalidFee, "fee shares sum to %d bps, must be below %d", bpsSum, Denominator)
	}

	denom := uint256.NewInt(Denominator)
	rest := amount.Clone()
	entries := make([]Entry, 0, len(shares)+1)
	for _, s := range shares {
		if s.Recipient == (common.Address{}) {
			continue
		}
		// bps < 10000, so the quotient is below amount.
		part, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(s.Bps), denom)
		rest.Sub(rest, part)
		entries = append(entries, Entry{Name: s.Name, Recipient: s.Recipient, Amount: part})
	}
	entries = append(entries, Entry{Name: remainder.Name, Recipient: remainder.Recipient, Amount: rest})
	return Allocation{Entries: entries}, nil
}

// Mine splits a mining price: 80% to the previous miner's claimable
// balance, 4% team, 1% protocol, the rest (nominally 15%) to treasury.
func Mine(price *uint256.Int, prevMiner, treasury, team, protocol common.Address) (Allocation, error) {
	return Split(price,
		Share{Name: NameTreasury, Recipient: treasury},
		Share{Name: NameMiner, Recipient: prevMiner, Bps: MineMinerBps},
		Share{Name: NameTeam, Recipient: team, Bps: TeamBps},
		Share{Name: NameProtocol, Recipient: protocol, Bps: ProtocolBps},
	)
}

// Spin splits a spin price: 4% team, 1% protocol, the rest (nominally 95%)
// to treasury.
func Spin(price *uint256.Int, treasury, team, protocol common.Address) (Allocation, error) {
	return Split(price,
		Share{Name: NameTreasury, Recipient: treasury},
		Share{Name: NameTeam, Recipient: team, Bps: TeamBps},
		Share{Name: NameProtocol, Recipient: protocol, Bps: ProtocolBps},
	)
}

// Fund splits a donation: 50% recipient, 4% team, 1% protocol, the rest
// (nominally 45%) to treasury.
func Fund(amount *uint256.Int, recipient, treasury, team, protocol common.Address) (Allocation, error) {
	return Split(amount,
		Share{Name: NameTreasury, Recipient: treasury},
		Share{Name: NameRecipient, Recipient: recipient, Bps: FundRecipientBps},
		Share{Name: NameTeam, Recipient: team, Bps: TeamBps},
		Share{Name: NameProtocol, Recipient: protocol, Bps: ProtocolBps},
	)
}
