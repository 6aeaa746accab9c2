// Package token is the fungible-token collaborator the rigs settle against.
//
// A Bank owns every Ledger and a shared undo journal. Rig entry points run
// their token movements inside Bank.Atomic so a failing transfer rolls back
// every earlier transfer of the same call. Rigs journal their own state
// writes and defer their events through the same Bank, so a rig entered
// from a token hook is rolled back with the call that invoked it.
//
// Semantics are the plain exact-amount kind: no fee-on-transfer, no
// rebasing, no blocklists. Amounts are 256-bit unsigned integers.
package token
