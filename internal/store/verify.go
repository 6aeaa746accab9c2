package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/querysql"
)

// TxState is everything the log holds about one transaction.
type TxState struct {
	TxID    string
	Receipt *ir.Receipt // nil if no receipt was written
	Events  []ir.Event
}

// Reverted reports whether the transaction has a reverted receipt.
func (t TxState) Reverted() bool {
	return t.Receipt != nil && t.Receipt.Status == ir.StatusReverted
}

// GetTxState returns the receipt and events of txID.
func (s *Store) GetTxState(ctx context.Context, txID string) (TxState, error) {
	state := TxState{TxID: txID}

	r, err := s.ReadReceipt(ctx, txID)
	switch {
	case err == nil:
		state.Receipt = &r
	case errors.Is(err, sql.ErrNoRows):
	default:
		return state, fmt.Errorf("get tx state: %w", err)
	}

	events, err := s.ReadEvents(ctx, querysql.Filter{TxID: txID})
	if err != nil {
		return state, fmt.Errorf("get tx state: %w", err)
	}
	state.Events = events
	return state, nil
}

// VerifyReport summarises a log check.
type VerifyReport struct {
	Events    int
	TraceHash string
	Problems  []string
}

// OK reports whether no problems were found.
func (r VerifyReport) OK() bool { return len(r.Problems) == 0 }

// Verify re-derives every event ID from its stored content, checks that
// seq strictly increases, and that no reverted transaction left events.
// It returns the trace hash over the log.
func (s *Store) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport

	events, err := s.ReadEvents(ctx, querysql.Filter{})
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	reverted, err := s.ReadReceipts(ctx, ir.StatusReverted)
	if err != nil {
		return report, fmt.Errorf("verify: %w", err)
	}
	revertedTx := make(map[string]bool, len(reverted))
	for _, r := range reverted {
		revertedTx[r.TxID] = true
	}

	ids := make([]string, 0, len(events))
	var last int64
	for _, ev := range events {
		id, err := ir.EventID(ev.TxID, ev.Seq, ev.Rig, ev.Kind, ev.Fields)
		if err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("seq %d: %v", ev.Seq, err))
		} else if id != ev.ID {
			report.Problems = append(report.Problems, fmt.Sprintf("seq %d: stored id %s, content hashes to %s", ev.Seq, ev.ID, id))
		}
		if ev.Seq <= last {
			report.Problems = append(report.Problems, fmt.Sprintf("seq %d follows %d", ev.Seq, last))
		}
		if revertedTx[ev.TxID] {
			report.Problems = append(report.Problems, fmt.Sprintf("seq %d: event from reverted tx %s", ev.Seq, ev.TxID))
		}
		last = ev.Seq
		ids = append(ids, ev.ID)
	}

	report.Events = len(events)
	report.TraceHash = ir.TraceHash(ids)
	return report, nil
}
