package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/querysql"
)

var eventColumns = []string{"id", "tx_id", "seq", "time", "rig", "kind", "fields"}

var receiptColumns = []string{"id", "seq", "time", "label", "sender", "status", "code", "error"}

// ReadEvents returns the events matching f in log order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f querysql.Filter) ([]ir.Event, error) {
	q, err := querysql.CompileEvents(f, eventColumns...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadEvent retrieves one event by ID. Returns sql.ErrNoRows if absent.
func (s *Store) ReadEvent(ctx context.Context, id string) (ir.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_id, seq, time, rig, kind, fields
		FROM events
		WHERE id = ?
	`, id)
	return scanEvent(row)
}

// CountEvents returns how many events match f. Limit is ignored.
func (s *Store) CountEvents(ctx context.Context, f querysql.Filter) (int64, error) {
	f.Limit = 0
	q, err := querysql.CompileEvents(f, "id")
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+q.SQL+")", q.Params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LastSeq returns the highest event seq, or 0 for an empty log. A
// recorder resuming the log starts after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadReceipts returns receipts in order. When status is non-empty only
// receipts with that status are returned.
func (s *Store) ReadReceipts(ctx context.Context, status string) ([]ir.Receipt, error) {
	var pred querysql.Predicate
	if status != "" {
		pred = querysql.Equals{Column: "status", Value: ir.IRString(status)}
	}
	q, err := querysql.Compile(querysql.TableReceipts, receiptColumns, pred, 0)
	if err != nil {
		return nil, fmt.Errorf("read receipts: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []ir.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return receipts, nil
}

// ReadReceipt retrieves the receipt of txID. Returns sql.ErrNoRows if
// absent.
func (s *Store) ReadReceipt(ctx context.Context, txID string) (ir.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, time, label, sender, status, code, error
		FROM receipts
		WHERE id = ?
	`, txID)
	return scanReceipt(row)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (ir.Event, error) {
	var (
		ev     ir.Event
		t      int64
		fields string
	)
	if err := row.Scan(&ev.ID, &ev.TxID, &ev.Seq, &t, &ev.Rig, &ev.Kind, &fields); err != nil {
		if err == sql.ErrNoRows {
			return ir.Event{}, err
		}
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Time = uint64(t)
	obj, err := unmarshalFields(fields)
	if err != nil {
		return ir.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Fields = obj
	return ev, nil
}

func scanReceipt(row scanner) (ir.Receipt, error) {
	var (
		r ir.Receipt
		t int64
	)
	if err := row.Scan(&r.TxID, &r.Seq, &t, &r.Label, &r.From, &r.Status, &r.Code, &r.Error); err != nil {
		if err == sql.ErrNoRows {
			return ir.Receipt{}, err
		}
		return ir.Receipt{}, fmt.Errorf("scan receipt: %w", err)
	}
	r.Time = uint64(t)
	return r, nil
}
