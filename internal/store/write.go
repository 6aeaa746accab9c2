package store

import (
	"context"
	"fmt"

	"github.com/roach88/rigs/internal/ir"
)

// WriteEvent appends an event. Writing the same event twice is a no-op
// (ON CONFLICT(id) DO NOTHING); a different event at an occupied seq is
// an error.
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	fieldsJSON, err := marshalFields(ev.Fields)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, tx_id, seq, time, rig, kind, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.TxID,
		ev.Seq,
		int64(ev.Time),
		ev.Rig,
		ev.Kind,
		fieldsJSON,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteEvents appends events in one transaction. Either all are written
// or none.
func (s *Store) WriteEvents(ctx context.Context, events []ir.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, tx_id, seq, time, rig, kind, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		fieldsJSON, err := marshalFields(ev.Fields)
		if err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.TxID, ev.Seq, int64(ev.Time), ev.Rig, ev.Kind, fieldsJSON); err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

// WriteReceipt records a transaction outcome. Idempotent on the
// transaction id.
func (s *Store) WriteReceipt(ctx context.Context, r ir.Receipt) error {
	if r.Status != ir.StatusOK && r.Status != ir.StatusReverted {
		return fmt.Errorf("write receipt: invalid status %q", r.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, seq, time, label, sender, status, code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.TxID,
		r.Seq,
		int64(r.Time),
		r.Label,
		r.From,
		r.Status,
		r.Code,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}
