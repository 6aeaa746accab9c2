package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/engine"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/querysql"
)

func TestGetTxState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := seedEvents(t, s)
	require.NoError(t, s.WriteReceipt(ctx, ir.Receipt{TxID: "tx-1", Seq: 1, Label: "mine", Status: ir.StatusOK}))

	state, err := s.GetTxState(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, state.Receipt)
	assert.False(t, state.Reverted())
	assert.Equal(t, events[:2], state.Events)

	state, err = s.GetTxState(ctx, "tx-9")
	require.NoError(t, err)
	assert.Nil(t, state.Receipt)
	assert.Empty(t, state.Events)
}

func TestVerify_CleanLog(t *testing.T) {
	s := createTestStore(t)
	events := seedEvents(t, s)

	report, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
	assert.Equal(t, 5, report.Events)

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	assert.Equal(t, ir.TraceHash(ids), report.TraceHash)
}

func TestVerify_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedEvents(t, s)

	_, err := s.db.Exec(`UPDATE events SET fields = '{"slot":1}' WHERE seq = 1`)
	require.NoError(t, err)
	require.NoError(t, s.WriteReceipt(ctx, ir.Receipt{TxID: "tx-3", Seq: 3, Status: ir.StatusReverted, Code: "NOTHING_TO_CLAIM"}))

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Len(t, report.Problems, 2)
	assert.Contains(t, report.Problems[0], "seq 1")
	assert.Contains(t, report.Problems[1], "reverted tx tx-3")
}

// TestStore_AsRecorderSink wires the store behind a recorder and a chain
// the way the simulate command does.
func TestStore_AsRecorderSink(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := engine.NewRecorder(s)
	chain := engine.NewChain(100, engine.WithReceiptSink(s), engine.WithTxIDs(engine.NewSequentialGenerator("tx")))
	rigAddr := common.HexToAddress(rig)

	res := chain.Execute(ctx, engine.Call{Label: "poke", Fn: func(tx engine.Tx) error {
		rec.Emit(tx, rigAddr,
			engine.Record{Kind: ir.KindMineMined, Fields: ir.IRObject{"slot": ir.IRInt(0)}},
			engine.Record{Kind: ir.KindTreasuryFee, Fields: ir.IRObject{"amount": ir.IRString("5")}},
		)
		return nil
	}})
	require.NoError(t, res.Err)
	res = chain.Execute(ctx, engine.Call{Label: "fail", Fn: func(tx engine.Tx) error {
		return engine.NewError(engine.ErrCodeNothingToClaim, "nothing")
	}})
	require.Error(t, res.Err)

	stored, err := s.ReadEvents(ctx, querysql.Filter{})
	require.NoError(t, err)
	assert.Equal(t, rec.Events(), stored)

	receipts, err := s.ReadReceipts(ctx, "")
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, ir.StatusOK, receipts[0].Status)
	assert.Equal(t, "NOTHING_TO_CLAIM", receipts[1].Code)

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
}
