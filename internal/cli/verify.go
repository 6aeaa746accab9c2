package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyResult reports an event log check.
type VerifyResult struct {
	OK        bool     `json:"ok"`
	Events    int      `json:"events"`
	Reverted  int      `json:"reverted"`
	TraceHash string   `json:"trace_hash"`
	Problems  []string `json:"problems,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a stored event log",
		Long: `Re-derive every event id from its content, check seq ordering and
that reverted transactions left no events, then print the trace hash.

Two databases produced from the same scenario have the same trace hash.

Exit codes:
  0 - Log is consistent
  1 - Problems found
  2 - Command error

Examples:
  rigs verify --db ./rigs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	report, err := st.Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify database", err)
	}
	reverted, err := st.ReadReceipts(ctx, ir.StatusReverted)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read receipts", err)
	}

	result := VerifyResult{
		OK:        report.OK(),
		Events:    report.Events,
		Reverted:  len(reverted),
		TraceHash: report.TraceHash,
		Problems:  report.Problems,
	}

	if formatter.JSON() {
		if result.OK {
			return formatter.Success(result)
		}
		if err := formatter.Failure(result, ErrCodeVerifyFailed, fmt.Sprintf("%d problem(s) found", len(result.Problems))); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "verification failed")
	}

	w := formatter.Writer
	if result.OK {
		fmt.Fprintf(w, "✓ %d event(s) verified\n", result.Events)
	} else {
		fmt.Fprintf(w, "✗ %d problem(s) in %d event(s)\n", len(result.Problems), result.Events)
		for _, p := range result.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	fmt.Fprintf(w, "  Reverted transactions: %d\n", result.Reverted)
	fmt.Fprintf(w, "  Trace hash: %s\n", result.TraceHash)
	if !result.OK {
		return NewExitError(ExitFailure, "verification failed")
	}
	return nil
}
