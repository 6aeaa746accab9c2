package compiler

import (
	"fmt"
	"math/big"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/auction"
	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/fund"
	"github.com/roach88/rigs/internal/mine"
	"github.com/roach88/rigs/internal/spin"
)

// Definitions are the compiled rigs, each group sorted by name.
type Definitions struct {
	Mines    []MineDef
	Spins    []SpinDef
	Funds    []FundDef
	Auctions []AuctionDef
}

// Count returns the number of rigs defined.
func (d *Definitions) Count() int {
	return len(d.Mines) + len(d.Spins) + len(d.Funds) + len(d.Auctions)
}

// Rig names one compiled rig.
type Rig struct {
	Kind    string // "mine", "spin", "fund" or "auction"
	Name    string
	Address common.Address
}

// Rigs lists every definition in kind then name order.
func (d *Definitions) Rigs() []Rig {
	out := make([]Rig, 0, d.Count())
	for _, m := range d.Mines {
		out = append(out, Rig{Kind: "mine", Name: m.Name, Address: m.Address})
	}
	for _, s := range d.Spins {
		out = append(out, Rig{Kind: "spin", Name: s.Name, Address: s.Address})
	}
	for _, f := range d.Funds {
		out = append(out, Rig{Kind: "fund", Name: f.Name, Address: f.Address})
	}
	for _, a := range d.Auctions {
		out = append(out, Rig{Kind: "auction", Name: a.Name, Address: a.Address})
	}
	return out
}

// Tokens are the quote and unit tokens a rig settles in.
type Tokens struct {
	Quote common.Address
	Unit  common.Address
}

// MineDef is a compiled Mine rig.
type MineDef struct {
	Name    string
	Address common.Address
	Tokens
	Config mine.Config
	Pos    token.Pos
}

// SpinDef is a compiled Spin rig.
type SpinDef struct {
	Name    string
	Address common.Address
	Tokens
	Config spin.Config
	Pos    token.Pos
}

// FundDef is a compiled Fund rig.
type FundDef struct {
	Name    string
	Address common.Address
	Tokens
	Config fund.Config
	Pos    token.Pos
}

// AuctionDef is a compiled treasury auction.
type AuctionDef struct {
	Name    string
	Address common.Address
	Config  auction.Config
	Pos     token.Pos
}

// validate applies every rig's own config validation and rejects two
// definitions sharing an address.
func (d *Definitions) validate() error {
	seen := make(map[common.Address]string)
	check := func(field string, addr common.Address, pos token.Pos, err error) error {
		if err != nil {
			ce := &CompileError{Field: field, Message: err.Error(), Pos: pos}
			ce.Code = engine.CodeOf(err)
			return ce
		}
		if addr == (common.Address{}) {
			return &CompileError{Field: field + ".address", Message: "address is zero", Pos: pos, Code: engine.ErrCodeZeroAddress}
		}
		if other, ok := seen[addr]; ok {
			return &CompileError{
				Field:   field + ".address",
				Message: fmt.Sprintf("address %s already used by %s", addr.Hex(), other),
				Pos:     pos,
				Code:    engine.ErrCodeAlreadyRegistered,
			}
		}
		seen[addr] = field
		return nil
	}

	for _, m := range d.Mines {
		if err := check("mine."+m.Name, m.Address, m.Pos, m.Config.Validate()); err != nil {
			return err
		}
	}
	for _, s := range d.Spins {
		if err := check("spin."+s.Name, s.Address, s.Pos, s.Config.Validate()); err != nil {
			return err
		}
	}
	for _, f := range d.Funds {
		if err := check("fund."+f.Name, f.Address, f.Pos, f.Config.Validate()); err != nil {
			return err
		}
	}
	for _, a := range d.Auctions {
		if err := check("auction."+a.Name, a.Address, a.Pos, a.Config.Validate()); err != nil {
			return err
		}
	}
	return nil
}

// decoder reads fields from one definition, remembering the first error.
type decoder struct {
	field string
	v     cue.Value
	raw   cue.Value
	err   error
}

func newDecoder(kind, name string, v, raw cue.Value) *decoder {
	return &decoder{field: kind + "." + name, v: v, raw: raw}
}

func (d *decoder) lookup(name string) (cue.Value, bool) {
	if d.err != nil {
		return cue.Value{}, false
	}
	fv := d.v.LookupPath(cue.MakePath(cue.Str(name)))
	if !fv.Exists() {
		return fv, false
	}
	if def, ok := fv.Default(); ok {
		fv = def
	}
	return fv, true
}

func (d *decoder) fail(name, format string, args ...any) {
	if d.err != nil {
		return
	}
	pos := d.raw.LookupPath(cue.MakePath(cue.Str(name))).Pos()
	if !pos.IsValid() {
		pos = d.raw.Pos()
	}
	d.err = &CompileError{Field: d.field + "." + name, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func (d *decoder) pos() token.Pos { return d.raw.Pos() }

func (d *decoder) text(name string) string {
	fv, ok := d.lookup(name)
	if !ok {
		return ""
	}
	s, err := fv.String()
	if err != nil {
		d.fail(name, "%v", err)
	}
	return s
}

func (d *decoder) address(name string) common.Address {
	s := d.text(name)
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func (d *decoder) flag(name string) bool {
	fv, ok := d.lookup(name)
	if !ok {
		return false
	}
	b, err := fv.Bool()
	if err != nil {
		d.fail(name, "%v", err)
	}
	return b
}

func (d *decoder) num(name string) uint64 {
	fv, ok := d.lookup(name)
	if !ok {
		return 0
	}
	n, err := fv.Uint64()
	if err != nil {
		d.fail(name, "%v", err)
	}
	return n
}

// amount returns nil when the field is absent.
func (d *decoder) amount(name string) *uint256.Int {
	fv, ok := d.lookup(name)
	if !ok {
		return nil
	}
	x, err := toAmount(fv)
	if err != nil {
		d.fail(name, "%v", err)
		return nil
	}
	return x
}

func (d *decoder) amounts(name string) []*uint256.Int {
	fv, ok := d.lookup(name)
	if !ok {
		return nil
	}
	iter, err := fv.List()
	if err != nil {
		d.fail(name, "%v", err)
		return nil
	}
	var out []*uint256.Int
	for i := 0; iter.Next(); i++ {
		x, err := toAmount(iter.Value())
		if err != nil {
			d.fail(name, "[%d]: %v", i, err)
			return nil
		}
		out = append(out, x)
	}
	return out
}

func (d *decoder) nums(name string) []uint64 {
	fv, ok := d.lookup(name)
	if !ok {
		return nil
	}
	iter, err := fv.List()
	if err != nil {
		d.fail(name, "%v", err)
		return nil
	}
	var out []uint64
	for i := 0; iter.Next(); i++ {
		n, err := iter.Value().Uint64()
		if err != nil {
			d.fail(name, "[%d]: %v", i, err)
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (d *decoder) settings() admin.Settings {
	return admin.Settings{
		Owner:    d.address("owner"),
		Treasury: d.address("treasury"),
		Team:     d.address("team"),
		URI:      d.text("uri"),
	}
}

func toAmount(v cue.Value) (*uint256.Int, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		b, err := v.Int(new(big.Int))
		if err != nil {
			return nil, err
		}
		if b.Sign() < 0 {
			return nil, fmt.Errorf("amount %s is negative", b)
		}
		x, overflow := uint256.FromBig(b)
		if overflow {
			return nil, fmt.Errorf("amount %s does not fit in 256 bits", b)
		}
		return x, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return uint256.FromDecimal(s)
	default:
		return nil, fmt.Errorf("amount must be an integer or decimal string, got %v", v.IncompleteKind())
	}
}

func decodeMine(name string, v, raw cue.Value) (MineDef, error) {
	d := newDecoder("mine", name, v, raw)
	def := MineDef{
		Name:    name,
		Address: d.address("address"),
		Tokens:  Tokens{Quote: d.address("quote"), Unit: d.address("unit")},
		Config: mine.Config{
			Name:               d.text("name"),
			Symbol:             d.text("symbol"),
			EpochPeriod:        d.num("epoch_period"),
			PriceMultiplier:    d.amount("price_multiplier"),
			MinInitPrice:       d.amount("min_init_price"),
			InitialUps:         d.amount("initial_ups"),
			TailUps:            d.amount("tail_ups"),
			HalvingAmount:      d.amount("halving_amount"),
			UpsMultipliers:     d.amounts("ups_multipliers"),
			MultiplierDuration: d.num("multiplier_duration"),
			Capacity:           d.num("capacity"),
			RandomnessEnabled:  d.flag("randomness"),
			Settings:           d.settings(),
		},
		Pos: d.pos(),
	}
	return def, d.err
}

func decodeSpin(name string, v, raw cue.Value) (SpinDef, error) {
	d := newDecoder("spin", name, v, raw)
	def := SpinDef{
		Name:    name,
		Address: d.address("address"),
		Tokens:  Tokens{Quote: d.address("quote"), Unit: d.address("unit")},
		Config: spin.Config{
			EpochPeriod:     d.num("epoch_period"),
			PriceMultiplier: d.amount("price_multiplier"),
			MinInitPrice:    d.amount("min_init_price"),
			InitPrice:       d.amount("init_price"),
			InitialUps:      d.amount("initial_ups"),
			TailUps:         d.amount("tail_ups"),
			HalvingPeriod:   d.num("halving_period"),
			Odds:            d.nums("odds"),
			Settings:        d.settings(),
		},
		Pos: d.pos(),
	}
	return def, d.err
}

func decodeFund(name string, v, raw cue.Value) (FundDef, error) {
	d := newDecoder("fund", name, v, raw)
	def := FundDef{
		Name:    name,
		Address: d.address("address"),
		Tokens:  Tokens{Quote: d.address("quote"), Unit: d.address("unit")},
		Config: fund.Config{
			Recipient:       d.address("recipient"),
			InitialEmission: d.amount("initial_emission"),
			MinEmission:     d.amount("min_emission"),
			HalvingPeriod:   d.num("halving_period"),
			Settings:        d.settings(),
		},
		Pos: d.pos(),
	}
	return def, d.err
}

func decodeAuction(name string, v, raw cue.Value) (AuctionDef, error) {
	d := newDecoder("auction", name, v, raw)
	def := AuctionDef{
		Name:    name,
		Address: d.address("address"),
		Config: auction.Config{
			InitPrice:       d.amount("init_price"),
			PaymentToken:    d.address("payment_token"),
			PaymentReceiver: d.address("payment_receiver"),
			EpochPeriod:     d.num("epoch_period"),
			PriceMultiplier: d.amount("price_multiplier"),
			MinInitPrice:    d.amount("min_init_price"),
		},
		Pos: d.pos(),
	}
	return def, d.err
}
