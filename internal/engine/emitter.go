package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/rigs/internal/ir"
)

// Record is an event before it has been sequenced.
type Record struct {
	Kind   string
	Fields ir.IRObject
}

// Emitter receives the records of a committed transaction.
//
// Emit is only called after the rig committed its state, so emitters never
// see records of reverted calls.
type Emitter interface {
	Emit(tx Tx, rig common.Address, records ...Record)
}

// Sink persists sequenced events (the store implements it).
type Sink interface {
	WriteEvent(ctx context.Context, ev ir.Event) error
}

// Discard drops every record.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Tx, common.Address, ...Record) {}

// MultiEmitter fans records out to several emitters in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(tx Tx, rig common.Address, records ...Record) {
	for _, e := range m {
		if e != nil {
			e.Emit(tx, rig, records...)
		}
	}
}

// Recorder sequences records into events, keeps them in memory and forwards
// them to sinks.
//
// Sink failures are logged and do not fail the transaction: telemetry is an
// external collaborator and the rig state is already committed.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	clock  *Clock
	events []ir.Event
	sinks  []Sink
}

// NewRecorder creates a recorder that forwards to sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{clock: NewClock(), sinks: sinks}
}

// NewRecorderAt creates a recorder whose sequence resumes after start.
func NewRecorderAt(start int64, sinks ...Sink) *Recorder {
	return &Recorder{clock: NewClockAt(start), sinks: sinks}
}

// Emit implements Emitter.
func (r *Recorder) Emit(tx Tx, rig common.Address, records ...Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		fields := rec.Fields
		if fields == nil {
			fields = ir.IRObject{}
		}
		seq := r.clock.Next()
		id, err := ir.EventID(tx.ID, seq, rig.Hex(), rec.Kind, fields)
		if err != nil {
			slog.Error("event id failed", "kind", rec.Kind, "seq", seq, "error", err)
			continue
		}
		ev := ir.Event{
			ID:     id,
			TxID:   tx.ID,
			Seq:    seq,
			Time:   tx.Time,
			Rig:    rig.Hex(),
			Kind:   rec.Kind,
			Fields: fields,
		}
		r.events = append(r.events, ev)

		for _, s := range r.sinks {
			if err := s.WriteEvent(tx.Context(), ev); err != nil {
				slog.Error("event sink write failed",
					"event_id", ev.ID,
					"kind", ev.Kind,
					"seq", ev.Seq,
					"error", err,
				)
			}
		}
	}
}

// Events returns a copy of all recorded events in sequence order.
func (r *Recorder) Events() []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events with the given kind.
func (r *Recorder) OfKind(kind string) []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Buffer collects the records of one call until it commits.
type Buffer struct {
	records []Record
}

// Add appends a record.
func (b *Buffer) Add(kind string, fields ir.IRObject) {
	b.records = append(b.records, Record{Kind: kind, Fields: fields})
}

// Records returns the buffered records.
func (b *Buffer) Records() []Record {
	return b.records
}

// Flush publishes the buffered records and empties the buffer.
func (b *Buffer) Flush(e Emitter, tx Tx, rig common.Address) {
	if e == nil || len(b.records) == 0 {
		b.records = nil
		return
	}
	e.Emit(tx, rig, b.records...)
	b.records = nil
}
