// Package vrf models the randomness oracle the Mine and Spin rigs draw from.
//
// A draw is two independent transactions. The rig calls Request and gets a
// sequence number back immediately; later the oracle calls the rig's
// Fulfill with that number and a 256-bit random value. Any number of other
// transactions may run in between.
package vrf

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/rigs/internal/engine"
)

// Consumer receives fulfilled draws.
type Consumer interface {
	Fulfill(tx engine.Tx, seq uint64, random *uint256.Int) error
}

// Oracle accepts draw requests.
type Oracle interface {
	// Address is the account fulfilments are sent from.
	Address() common.Address

	// Fee is the native-currency price of one draw.
	Fee() *uint256.Int

	// Request registers a draw for consumer and returns its sequence
	// number. It fails with INSUFFICIENT_FEE if fee < Fee().
	Request(consumer Consumer, fee *uint256.Int) (uint64, error)
}

type request struct {
	seq      uint64
	consumer Consumer
	fee      *uint256.Int
}

// Simulator is an in-process Oracle with deterministic randomness:
// random(seq) = SHA-256(seed || big-endian seq).
//
// Thread-safety: not safe for concurrent use; drive it from the chain loop.
type Simulator struct {
	addr      common.Address
	seed      []byte
	fee       uint256.Int
	next      uint64
	pending   map[uint64]request
	collected uint256.Int
	journal   engine.Journal
}

// NewSimulator creates an oracle at addr charging fee per draw.
func NewSimulator(addr common.Address, seed string, fee *uint256.Int) *Simulator {
	s := &Simulator{
		addr:    addr,
		seed:    []byte(seed),
		pending: make(map[uint64]request),
	}
	if fee != nil {
		s.fee.Set(fee)
	}
	return s
}

// Address implements Oracle.
func (s *Simulator) Address() common.Address { return s.addr }

// Fee implements Oracle.
func (s *Simulator) Fee() *uint256.Int { return s.fee.Clone() }

// SetFee changes the per-draw fee. Draws already requested keep the fee
// they paid.
func (s *Simulator) SetFee(fee *uint256.Int) {
	if fee == nil {
		fee = new(uint256.Int)
	}
	s.fee.Set(fee)
	slog.Debug("draw fee set", "fee", fee.Dec())
}

// UseJournal makes requests part of the caller's all-or-nothing call: a
// request made inside a call that later reverts is taken back.
func (s *Simulator) UseJournal(j engine.Journal) { s.journal = j }

// Request implements Oracle. Sequence numbers start at 1.
func (s *Simulator) Request(consumer Consumer, fee *uint256.Int) (uint64, error) {
	if fee == nil {
		fee = new(uint256.Int)
	}
	if fee.Lt(&s.fee) {
		return 0, engine.NewError(engine.ErrCodeInsufficientFee,
			"draw fee %s below %s", fee.Dec(), s.fee.Dec())
	}
	s.next++
	seq, paid := s.next, fee.Clone()
	s.pending[seq] = request{seq: seq, consumer: consumer, fee: paid}
	s.collected.Add(&s.collected, paid)
	if s.journal != nil {
		s.journal.Journal(func() {
			delete(s.pending, seq)
			s.collected.Sub(&s.collected, paid)
			s.next = seq - 1
		})
	}
	slog.Debug("draw requested", "seq", s.next, "fee", fee.Dec())
	return s.next, nil
}

// Random returns the value Fulfill delivers for seq.
func (s *Simulator) Random(seq uint64) *uint256.Int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h := sha256.New()
	h.Write(s.seed)
	h.Write(buf[:])
	return new(uint256.Int).SetBytes(h.Sum(nil))
}

// Fulfill delivers the deterministic random value for seq.
func (s *Simulator) Fulfill(tx engine.Tx, seq uint64) error {
	return s.FulfillWith(tx, seq, s.Random(seq))
}

// FulfillWith delivers a chosen random value for seq. The request is
// consumed only if the consumer accepts it; a failing callback leaves it
// pending.
func (s *Simulator) FulfillWith(tx engine.Tx, seq uint64, random *uint256.Int) error {
	req, ok := s.pending[seq]
	if !ok {
		return engine.NewError(engine.ErrCodeUnknownRequest, "no pending draw %d", seq)
	}
	delete(s.pending, seq)

	tx.From = s.addr
	if err := req.consumer.Fulfill(tx, seq, random); err != nil {
		s.pending[seq] = req
		return err
	}
	return nil
}

// FulfillAll fulfils every pending draw in sequence order and stops at the
// first failure.
func (s *Simulator) FulfillAll(tx engine.Tx) error {
	for _, seq := range s.Pending() {
		if err := s.Fulfill(tx, seq); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the outstanding sequence numbers in ascending order.
func (s *Simulator) Pending() []uint64 {
	out := make([]uint64, 0, len(s.pending))
	for seq := range s.pending {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Collected returns the total fees received.
func (s *Simulator) Collected() *uint256.Int { return s.collected.Clone() }
