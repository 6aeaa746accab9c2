// Package store provides SQLite-backed durable storage for rig event logs.
//
// The store is an append-only log of two record types:
//   - Events: structured records emitted by rigs, content-addressed by ID
//   - Receipts: one outcome record per transaction, ok or reverted
//
// # Ordering
//
// All reads order by seq ASC, id ASC COLLATE BINARY. Block time is
// recorded but never used for ordering, so replays read back identically.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection; SQLite has one writer
//
// Event IDs are computed by ir.EventID from RFC 8785 canonical JSON, and
// fields are stored in the same canonical form.
package store
