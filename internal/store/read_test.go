package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/querysql"
)

const otherRig = "0x0000000000000000000000000000000000002001"

func seedEvents(t *testing.T, s *Store) []ir.Event {
	t.Helper()
	events := []ir.Event{
		createTestEvent(t, "tx-1", 1, rig, ir.KindMineMined, ir.IRObject{"slot": ir.IRInt(0)}),
		createTestEvent(t, "tx-1", 2, rig, ir.KindTreasuryFee, nil),
		createTestEvent(t, "tx-2", 3, otherRig, ir.KindSpinSpun, nil),
		createTestEvent(t, "tx-3", 4, rig, ir.KindMineClaimed, nil),
		createTestEvent(t, "tx-4", 5, otherRig, ir.KindSpinWin, nil),
	}
	// Written out of order; reads must come back by seq.
	for _, i := range []int{3, 0, 4, 2, 1} {
		require.NoError(t, s.WriteEvent(context.Background(), events[i]))
	}
	return events
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	events := seedEvents(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter querysql.Filter
		want   []ir.Event
	}{
		{"all", querysql.Filter{}, events},
		{"rig", querysql.Filter{Rig: otherRig}, []ir.Event{events[2], events[4]}},
		{"kind", querysql.Filter{Kinds: []string{ir.KindMineClaimed}}, []ir.Event{events[3]}},
		{"kinds", querysql.Filter{Kinds: []string{ir.KindSpinWin, ir.KindMineMined}}, []ir.Event{events[0], events[4]}},
		{"tx", querysql.Filter{TxID: "tx-1"}, events[:2]},
		{"seq range", querysql.Filter{FromSeq: 2, ToSeq: 4}, events[1:4]},
		{"limit", querysql.Filter{Limit: 2}, events[:2]},
		{"no match", querysql.Filter{Rig: "0xdead"}, []ir.Event{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadEvents(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountEvents_IgnoresLimit(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	n, err := s.CountEvents(context.Background(), querysql.Filter{Rig: rig, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestReadEvent_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = s.ReadReceipt(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	seedEvents(t, s)
	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}
