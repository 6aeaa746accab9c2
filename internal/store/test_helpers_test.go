package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rigs/internal/ir"
)

// createTestStore opens a fresh store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent builds an event with a correct content-addressed ID.
func createTestEvent(t *testing.T, txID string, seq int64, rig, kind string, fields ir.IRObject) ir.Event {
	t.Helper()
	if fields == nil {
		fields = ir.IRObject{}
	}
	id, err := ir.EventID(txID, seq, rig, kind, fields)
	if err != nil {
		t.Fatalf("EventID() failed: %v", err)
	}
	return ir.Event{ID: id, TxID: txID, Seq: seq, Time: uint64(1_000 + seq), Rig: rig, Kind: kind, Fields: fields}
}
