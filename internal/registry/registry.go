// Package registry is the append-only directory of deployed rigs and the
// set of factories allowed to add to it. Rigs receive it as a capability
// for one thing only: the protocol fee address.
package registry

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
)

// Rig kinds.
const (
	KindMine    = "mine"
	KindSpin    = "spin"
	KindFund    = "fund"
	KindAuction = "auction"
)

// Entry is one registered rig.
type Entry struct {
	Rig      common.Address
	Kind     string
	Factory  common.Address
	Launcher common.Address
}

// Registry is owner administered.
type Registry struct {
	addr        common.Address
	owner       common.Address
	protocolFee common.Address
	approved    map[common.Address]bool
	entries     []Entry
	index       map[common.Address]int
	emitter     engine.Emitter
}

// New creates an empty registry. A nil emitter discards events.
func New(addr, owner, protocolFee common.Address, emitter engine.Emitter) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, engine.NewError(engine.ErrCodeZeroAddress, "registry owner is zero")
	}
	if emitter == nil {
		emitter = engine.Discard
	}
	return &Registry{
		addr:        addr,
		owner:       owner,
		protocolFee: protocolFee,
		approved:    make(map[common.Address]bool),
		index:       make(map[common.Address]int),
		emitter:     emitter,
	}, nil
}

// Address returns the registry address.
func (r *Registry) Address() common.Address { return r.addr }

// ProtocolFeeAddress implements fees.Protocol.
func (r *Registry) ProtocolFeeAddress() common.Address { return r.protocolFee }

// SetProtocolFeeAddress changes the protocol recipient. Zero disables the
// protocol share on every rig.
func (r *Registry) SetProtocolFeeAddress(tx engine.Tx, a common.Address) error {
	if tx.From != r.owner {
		return engine.NewError(engine.ErrCodeUnauthorized, "%s is not the registry owner", tx.From.Hex())
	}
	r.protocolFee = a
	r.emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindRegistryProtocolFee, Fields: ir.IRObject{
		"protocol_fee": ir.Address(a),
	}})
	return nil
}

// SetFactoryApproval adds or removes a factory.
func (r *Registry) SetFactoryApproval(tx engine.Tx, factory common.Address, approved bool) error {
	if tx.From != r.owner {
		return engine.NewError(engine.ErrCodeUnauthorized, "%s is not the registry owner", tx.From.Hex())
	}
	if factory == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "factory is zero")
	}
	if approved {
		r.approved[factory] = true
	} else {
		delete(r.approved, factory)
	}
	r.emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindRegistryApproval, Fields: ir.IRObject{
		"factory":  ir.Address(factory),
		"approved": ir.IRBool(approved),
	}})
	return nil
}

// IsApproved reports whether factory may register rigs.
func (r *Registry) IsApproved(factory common.Address) bool { return r.approved[factory] }

// Register records a rig deployed by tx.From, which must be an approved
// factory.
func (r *Registry) Register(tx engine.Tx, rig common.Address, kind string, launcher common.Address) error {
	if !r.approved[tx.From] {
		return engine.NewError(engine.ErrCodeNotApproved, "factory %s is not approved", tx.From.Hex())
	}
	if rig == (common.Address{}) {
		return engine.NewError(engine.ErrCodeZeroAddress, "rig is zero")
	}
	if kind == "" {
		return engine.NewError(engine.ErrCodeEmptyName, "rig kind is empty")
	}
	if _, ok := r.index[rig]; ok {
		return engine.NewError(engine.ErrCodeAlreadyRegistered, "rig %s already registered", rig.Hex())
	}
	r.index[rig] = len(r.entries)
	r.entries = append(r.entries, Entry{Rig: rig, Kind: kind, Factory: tx.From, Launcher: launcher})

	slog.Debug("rig registered", "rig", rig.Hex(), "kind", kind)
	r.emitter.Emit(tx, r.addr, engine.Record{Kind: ir.KindRegistryRegistered, Fields: ir.IRObject{
		"rig":      ir.Address(rig),
		"kind":     ir.IRString(kind),
		"factory":  ir.Address(tx.From),
		"launcher": ir.Address(launcher),
	}})
	return nil
}

// Lookup returns the entry for rig.
func (r *Registry) Lookup(rig common.Address) (Entry, bool) {
	i, ok := r.index[rig]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
