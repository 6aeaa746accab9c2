// Package ir defines the record types the rig engines publish and the
// canonical encoding used to identify them.
//
// Every state transition of a rig (mine, spin, fund, claim, buy, admin
// change) is described by an Event whose Fields hold IR values. IR values
// are deliberately narrow:
//   - NO float types anywhere; amounts are decimal strings, small counters int64
//   - No nulls in canonical output
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//
// The package imports nothing internal. All other packages may import ir.
package ir
