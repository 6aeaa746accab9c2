package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/querysql"
	"github.com/roach88/rigs/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Rig      string
	Kinds    []string
	TxID     string
	FromSeq  int64
	Limit    int
}

// TraceResult holds the trace output.
type TraceResult struct {
	Events  []ir.Event  `json:"events"`
	Receipt *ir.Receipt `json:"receipt,omitempty"`
	Total   int64       `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the event log",
		Long: `List events from a database written by "rigs simulate", in seq order.

Filters combine: --rig keeps one emitting rig, --kind (repeatable) keeps
the given event kinds, --tx keeps one transaction and also prints its
receipt.

Examples:
  rigs trace --db ./rigs.db
  rigs trace --db ./rigs.db --rig 0x...1001 --kind Mine.Mined
  rigs trace --db ./rigs.db --tx tx-5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Rig, "rig", "", "emitting rig address")
	cmd.Flags().StringArrayVar(&opts.Kinds, "kind", nil, "event kind, e.g. Mine.Mined (repeatable)")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "transaction id")
	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "first seq to include")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	filter := querysql.Filter{
		Kinds:   opts.Kinds,
		TxID:    opts.TxID,
		FromSeq: opts.FromSeq,
		Limit:   opts.Limit,
	}
	if opts.Rig != "" {
		if !common.IsHexAddress(opts.Rig) {
			return outputCommandError(formatter, ErrCodeBadFlag, fmt.Sprintf("--rig %q is not an address", opts.Rig))
		}
		filter.Rig = common.HexToAddress(opts.Rig).Hex()
	}
	if opts.Limit < 0 || opts.FromSeq < 0 {
		return outputCommandError(formatter, ErrCodeBadFlag, "--limit and --from-seq must be non-negative")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	countFilter := filter
	countFilter.Limit = 0
	total, err := st.CountEvents(ctx, countFilter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	result := TraceResult{Events: events, Total: total}
	if opts.TxID != "" {
		r, err := st.ReadReceipt(ctx, opts.TxID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("transaction %s not found", opts.TxID))
		case err != nil:
			return WrapExitError(ExitCommandError, "failed to read receipt", err)
		}
		result.Receipt = &r
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer
	if r := result.Receipt; r != nil {
		fmt.Fprintf(w, "%s %s from %s at %d: %s", r.TxID, r.Label, r.From, r.Time, r.Status)
		if r.Code != "" {
			fmt.Fprintf(w, " %s", r.Code)
		}
		fmt.Fprintln(w)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s\n", r.Error)
		}
	}
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	for _, ev := range result.Events {
		fields, err := ir.MarshalCanonical(ev.Fields)
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		fmt.Fprintf(w, "%4d %-6s %s %-16s %s\n", ev.Seq, ev.TxID, shortAddress(ev.Rig), ev.Kind, fields)
	}
	if shown := int64(len(result.Events)); shown < result.Total {
		fmt.Fprintf(w, "(%d of %d events)\n", shown, result.Total)
	}
	return nil
}

// shortAddress abbreviates a hex address to 0x1234…abcd.
func shortAddress(hex string) string {
	if len(hex) <= 12 || !strings.HasPrefix(hex, "0x") {
		return hex
	}
	return hex[:6] + "…" + hex[len(hex)-4:]
}
