package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rigs/internal/ir"
)

// FormatTrace renders a run as one line per transaction followed by its
// events. Addresses print as "@name" from the run's address book and
// event fields are canonical JSON, so the output is byte-stable:
//
//	# mine_basic
//	tx-3 mine alice ok
//	  1 gold Mine.Mined {"epoch_id":0,...}
//	tx-4 mine carol reverted EPOCH_MISMATCH
func FormatTrace(name string, result *Result) ([]byte, error) {
	book := result.Book
	if book == nil {
		book = NewAddressBook()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", name)
	for _, r := range result.Receipts {
		fmt.Fprintf(&buf, "%s %s %s %s", r.TxID, r.Label, book.Name(common.HexToAddress(r.From)), r.Status)
		if r.Code != "" {
			fmt.Fprintf(&buf, " %s", r.Code)
		}
		buf.WriteByte('\n')

		for _, ev := range result.EventsOf(r.TxID) {
			fields, err := ir.MarshalCanonical(book.Rename(ev.Fields))
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
			}
			fmt.Fprintf(&buf, "  %d %s %s %s\n", ev.Seq, book.Name(common.HexToAddress(ev.Rig)), ev.Kind, fields)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the golden
// file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	trace, err := FormatTrace(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, trace)
	return nil
}
