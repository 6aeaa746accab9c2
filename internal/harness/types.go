package harness

import (
	"github.com/roach88/rigs/internal/ir"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Action string `json:"action"`
	TxID   string `json:"tx_id,omitempty"`
	Status string `json:"status,omitempty"` // "ok" | "reverted"; empty for steps that are not transactions
	Code   string `json:"code,omitempty"`
	Time   uint64 `json:"time"`

	// Amount is the decimal amount the call returned, if any.
	Amount string `json:"amount,omitempty"`

	Err error `json:"-"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expect clause and every
	// assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Events is the full event log in seq order.
	Events []ir.Event `json:"events"`

	// Receipts has one entry per transaction step, setup included.
	Receipts []ir.Receipt `json:"receipts"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Book names the accounts, rigs and tokens of the run.
	Book *AddressBook `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(book *AddressBook) *Result {
	return &Result{
		Pass:     true,
		Steps:    []StepResult{},
		Events:   []ir.Event{},
		Receipts: []ir.Receipt{},
		Errors:   []string{},
		Book:     book,
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventsOf returns the events emitted by transaction txID.
func (r *Result) EventsOf(txID string) []ir.Event {
	var out []ir.Event
	for _, ev := range r.Events {
		if ev.TxID == txID {
			out = append(out, ev)
		}
	}
	return out
}
