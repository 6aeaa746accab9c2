package fees

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
)

// Protocol supplies the protocol fee recipient. The registry implements it;
// a zero address disables the protocol share.
type Protocol interface {
	ProtocolFeeAddress() common.Address
}

// ProtocolAddress resolves p, treating nil as disabled.
func ProtocolAddress(p Protocol) common.Address {
	if p == nil {
		return common.Address{}
	}
	return p.ProtocolFeeAddress()
}

// Transferer is the token capability Pay needs.
type Transferer interface {
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Pay pulls every non-zero entry of a from payer, with rig as spender.
// Entries named in keep are paid to the rig itself instead of their
// recipient (the Mine miner share is held for a later claim).
func Pay(t Transferer, rig, payer common.Address, a Allocation, keep ...string) error {
	for _, e := range a.Entries {
		if e.Amount.IsZero() {
			continue
		}
		to := e.Recipient
		for _, k := range keep {
			if e.Name == k {
				to = rig
			}
		}
		if err := t.TransferFrom(rig, payer, to, e.Amount); err != nil {
			return err
		}
	}
	return nil
}

var kinds = map[string]string{
	NameMiner:     ir.KindMineMinerFee,
	NameTreasury:  ir.KindTreasuryFee,
	NameTeam:      ir.KindTeamFee,
	NameProtocol:  ir.KindProtocolFee,
	NameRecipient: ir.KindRecipientFee,
}

// Records returns one fee event per non-zero entry. Each carries base plus
// the recipient and amount.
func (a Allocation) Records(base ir.IRObject) []engine.Record {
	out := make([]engine.Record, 0, len(a.Entries))
	for _, e := range a.Entries {
		if e.Amount.IsZero() {
			continue
		}
		fields := make(ir.IRObject, len(base)+2)
		for k, v := range base {
			fields[k] = v
		}
		fields["recipient"] = ir.Address(e.Recipient)
		fields["amount"] = ir.Amount(e.Amount)
		out = append(out, engine.Record{Kind: kinds[e.Name], Fields: fields})
	}
	return out
}
