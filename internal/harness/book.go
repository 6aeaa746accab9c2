package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/rigs/internal/ir"
)

// AddressBook maps names to addresses and back. The first name added for
// an address is the one traces print.
type AddressBook struct {
	byName map[string]common.Address
	byAddr map[common.Address]string
}

// NewAddressBook creates an empty book.
func NewAddressBook() *AddressBook {
	return &AddressBook{
		byName: make(map[string]common.Address),
		byAddr: make(map[common.Address]string),
	}
}

// Add binds name to addr. Rebinding a name to another address fails.
func (b *AddressBook) Add(name string, addr common.Address) error {
	if name == "" {
		return fmt.Errorf("empty name for %s", addr.Hex())
	}
	if strings.HasPrefix(name, "0x") {
		return fmt.Errorf("name %q looks like an address", name)
	}
	if prev, ok := b.byName[name]; ok && prev != addr {
		return fmt.Errorf("name %q is bound to %s, not %s", name, prev.Hex(), addr.Hex())
	}
	b.byName[name] = addr
	if _, ok := b.byAddr[addr]; !ok {
		b.byAddr[addr] = name
	}
	return nil
}

// Resolve turns a name or hex address into an address.
func (b *AddressBook) Resolve(ref string) (common.Address, error) {
	if addr, ok := b.byName[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown address %q", ref)
}

// Name returns the name of addr, or its hex form when it has none.
func (b *AddressBook) Name(addr common.Address) string {
	if name, ok := b.byAddr[addr]; ok {
		return name
	}
	return addr.Hex()
}

// Names lists every bound name, sorted.
func (b *AddressBook) Names() []string {
	out := make([]string, 0, len(b.byName))
	for name := range b.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rename returns a copy of v with every known address string replaced by
// "@name".
func (b *AddressBook) Rename(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRString:
		s := string(val)
		if len(s) == 42 && common.IsHexAddress(s) {
			if name, ok := b.byAddr[common.HexToAddress(s)]; ok {
				return ir.IRString("@" + name)
			}
		}
		return val
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, item := range val {
			out[i] = b.Rename(item)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, item := range val {
			out[k] = b.Rename(item)
		}
		return out
	default:
		return v
	}
}
