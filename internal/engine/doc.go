// Package engine provides the transaction runtime shared by every rig.
//
// Rigs never run concurrently with themselves. A hosting ledger (a chain in
// production, Chain in simulation and tests) imposes a total order on
// transactions, and each transaction runs to completion before the next
// starts.
//
// ARCHITECTURE:
//
// Single-Writer Transaction Loop:
// Chain executes calls one at a time, either synchronously through Execute
// or from a FIFO queue drained by Run. This gives:
//   - A total order on every state transition
//   - Reproducible event logs for the same call sequence
//   - Front-running defense by epoch id rather than by locking
//
// Per-call context is carried by Tx: sender, block time, attached native
// value and a transaction id. Rigs read time only from Tx, never from the
// wall clock.
//
// CRITICAL PATTERNS:
//
// All-or-nothing entry points:
// Rig entry points validate first, move tokens inside a bank snapshot, and
// only then commit their own state. Events are buffered and published after
// commit, so a reverted call leaves no trace except its receipt.
//
// Non-reentrancy:
// Each rig owns a Guard. Token transfers to caller-supplied addresses may
// call back into the rig; the guard rejects such calls with REENTRANT_CALL.
//
// Asynchronous randomness:
// Randomness requests return a sequence id immediately. The answer arrives
// later as an independent transaction and operates on live state.
package engine
