package testutil

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Addr returns the address whose low bytes are n: Addr(0xa1) is
// 0x00000000000000000000000000000000000000a1.
func Addr(n uint64) common.Address {
	return common.BigToAddress(new(uint256.Int).SetUint64(n).ToBig())
}

// U is shorthand for uint256.NewInt.
func U(n uint64) *uint256.Int { return uint256.NewInt(n) }

// E18 returns n * 1e18.
func E18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

// Amount parses a decimal amount that may use _ separators. It panics on bad
// input and is meant for literals in tests.
func Amount(s string) *uint256.Int {
	v, err := uint256.FromDecimal(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		panic(fmt.Sprintf("testutil.Amount(%q): %v", s, err))
	}
	return v
}
