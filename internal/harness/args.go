package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/token"
)

// argReader decodes step arguments. The first problem is kept and every
// later read returns a zero value, so callers check err once at the end.
type argReader struct {
	where string
	args  map[string]Arg
	book  *AddressBook
	used  map[string]bool
	err   error
}

func newArgReader(where string, args map[string]Arg, book *AddressBook) *argReader {
	return &argReader{where: where, args: args, book: book, used: make(map[string]bool)}
}

func (a *argReader) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("%s: %s", a.where, fmt.Sprintf(format, args...))
	}
}

func (a *argReader) has(key string) bool {
	_, ok := a.args[key]
	return ok
}

func (a *argReader) scalar(key string) (string, bool) {
	arg, ok := a.args[key]
	if !ok {
		return "", false
	}
	a.used[key] = true
	if arg.IsList {
		a.fail("args.%s must be a scalar", key)
		return "", false
	}
	return arg.Value, true
}

func (a *argReader) text(key, def string) string {
	if s, ok := a.scalar(key); ok {
		return s
	}
	return def
}

func (a *argReader) uint(key string, def uint64) uint64 {
	s, ok := a.scalar(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		a.fail("args.%s: %q is not an unsigned integer", key, s)
		return 0
	}
	return n
}

func (a *argReader) amount(key string, def *uint256.Int) *uint256.Int {
	s, ok := a.scalar(key)
	if !ok {
		return def
	}
	v, err := parseAmount(s)
	if err != nil {
		a.fail("args.%s: %v", key, err)
		return new(uint256.Int)
	}
	return v
}

func (a *argReader) address(key string, def common.Address) common.Address {
	s, ok := a.scalar(key)
	if !ok {
		return def
	}
	addr, err := a.book.Resolve(s)
	if err != nil {
		a.fail("args.%s: %v", key, err)
	}
	return addr
}

// list reads a list argument; a scalar is a one-element list.
func (a *argReader) list(key string) []string {
	arg, ok := a.args[key]
	if !ok {
		return nil
	}
	a.used[key] = true
	if !arg.IsList {
		return []string{arg.Value}
	}
	return arg.List
}

func (a *argReader) addresses(key string) []common.Address {
	refs := a.list(key)
	out := make([]common.Address, 0, len(refs))
	for _, ref := range refs {
		addr, err := a.book.Resolve(ref)
		if err != nil {
			a.fail("args.%s: %v", key, err)
			return nil
		}
		out = append(out, addr)
	}
	return out
}

func (a *argReader) uints(key string) []uint64 {
	items := a.list(key)
	out := make([]uint64, 0, len(items))
	for _, s := range items {
		n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
		if err != nil {
			a.fail("args.%s: %q is not an unsigned integer", key, s)
			return nil
		}
		out = append(out, n)
	}
	return out
}

// done reports the first decode problem, or any argument nobody read.
func (a *argReader) done() error {
	if a.err != nil {
		return a.err
	}
	var unknown []string
	for key := range a.args {
		if !a.used[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%s: unknown args %s", a.where, strings.Join(unknown, ", "))
	}
	return nil
}

// parseAmount reads a base-10 amount; "max" is the all-ones value used for
// unlimited approvals and price caps.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "max" {
		return token.MaxAllowance.Clone(), nil
	}
	v, err := uint256.FromDecimal(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		return nil, fmt.Errorf("%q is not a 256-bit amount", s)
	}
	return v, nil
}
