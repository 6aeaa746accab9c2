package vrf

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rigs/internal/engine"
)

var oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")

type recordingConsumer struct {
	seqs    []uint64
	values  []*uint256.Int
	senders []common.Address
	fail    bool
}

func (c *recordingConsumer) Fulfill(tx engine.Tx, seq uint64, random *uint256.Int) error {
	if c.fail {
		return errors.New("callback failed")
	}
	c.seqs = append(c.seqs, seq)
	c.values = append(c.values, random)
	c.senders = append(c.senders, tx.From)
	return nil
}

func TestSimulator_RequestChecksFee(t *testing.T) {
	s := NewSimulator(oracleAddr, "seed", uint256.NewInt(10))
	c := &recordingConsumer{}

	_, err := s.Request(c, uint256.NewInt(9))
	assert.True(t, engine.IsCode(err, engine.ErrCodeInsufficientFee))

	seq, err := s.Request(c, uint256.NewInt(12))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, uint256.NewInt(12), s.Collected())
	assert.Equal(t, []uint64{1}, s.Pending())
}

func TestSimulator_FulfillIsDeterministicAndConsumesOnce(t *testing.T) {
	s := NewSimulator(oracleAddr, "seed", nil)
	c := &recordingConsumer{}
	seq1, _ := s.Request(c, nil)
	seq2, _ := s.Request(c, nil)

	require.NoError(t, s.FulfillAll(engine.Tx{Time: 5}))
	assert.Equal(t, []uint64{seq1, seq2}, c.seqs)
	assert.Equal(t, s.Random(seq1), c.values[0])
	assert.NotEqual(t, c.values[0], c.values[1])
	assert.Equal(t, oracleAddr, c.senders[0], "callbacks come from the oracle")

	err := s.Fulfill(engine.Tx{}, seq1)
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnknownRequest))

	other := NewSimulator(oracleAddr, "seed", nil)
	assert.Equal(t, s.Random(7), other.Random(7))
}

func TestSimulator_FailedCallbackStaysPending(t *testing.T) {
	s := NewSimulator(oracleAddr, "seed", nil)
	c := &recordingConsumer{fail: true}
	seq, _ := s.Request(c, nil)

	assert.Error(t, s.FulfillWith(engine.Tx{}, seq, uint256.NewInt(3)))
	assert.Equal(t, []uint64{seq}, s.Pending())

	c.fail = false
	require.NoError(t, s.FulfillWith(engine.Tx{}, seq, uint256.NewInt(3)))
	assert.Empty(t, s.Pending())
	assert.Equal(t, uint256.NewInt(3), c.values[0])
}

func TestSimulator_SetFee(t *testing.T) {
	s := NewSimulator(oracleAddr, "seed", uint256.NewInt(10))
	c := &recordingConsumer{}
	seq, err := s.Request(c, uint256.NewInt(10))
	require.NoError(t, err)

	s.SetFee(uint256.NewInt(25))
	assert.Equal(t, uint256.NewInt(25), s.Fee())
	_, err = s.Request(c, uint256.NewInt(10))
	assert.True(t, engine.IsCode(err, engine.ErrCodeInsufficientFee))

	s.SetFee(nil)
	assert.True(t, s.Fee().IsZero())
	assert.Equal(t, []uint64{seq}, s.Pending(), "earlier draws are unaffected")
}

// undoLog collects undo steps and replays them in reverse.
type undoLog struct{ undos []func() }

func (l *undoLog) Journal(undo func()) { l.undos = append(l.undos, undo) }
func (l *undoLog) OnCommit(fn func())  { fn() }

func (l *undoLog) revert() {
	for i := len(l.undos) - 1; i >= 0; i-- {
		l.undos[i]()
	}
	l.undos = nil
}

func TestSimulator_JournaledRequestIsTakenBack(t *testing.T) {
	s := NewSimulator(oracleAddr, "seed", uint256.NewInt(2))
	c := &recordingConsumer{}
	first, err := s.Request(c, uint256.NewInt(2))
	require.NoError(t, err)

	j := &undoLog{}
	s.UseJournal(j)
	_, err = s.Request(c, uint256.NewInt(3))
	require.NoError(t, err)
	_, err = s.Request(c, uint256.NewInt(4))
	require.NoError(t, err)
	j.revert()

	assert.Equal(t, []uint64{first}, s.Pending())
	assert.Equal(t, uint256.NewInt(2), s.Collected())

	next, err := s.Request(c, uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, first+1, next, "sequence numbers are reused after a revert")
}
