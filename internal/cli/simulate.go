package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/harness"
	"github.com/roach88/rigs/internal/ir"
	"github.com/roach88/rigs/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
}

// SimulateResult summarizes a persisted scenario run.
type SimulateResult struct {
	Scenario     string   `json:"scenario"`
	Database     string   `json:"database"`
	Pass         bool     `json:"pass"`
	Transactions int      `json:"transactions"`
	Reverted     int      `json:"reverted"`
	Events       int      `json:"events"`
	TraceHash    string   `json:"trace_hash"`
	Errors       []string `json:"errors,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a scenario and persist its log",
		Long: `Run one scenario and write every event and receipt to a SQLite
database. The database must be new or empty; inspect it afterwards with
"rigs trace" and "rigs verify".

Examples:
  rigs simulate ./scenarios/mine_basic.yaml --db ./rigs.db
  rigs simulate ./scenarios/mine_basic.yaml --db ./rigs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("failed to load scenario: %v", err))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	if last > 0 {
		return outputCommandError(formatter, ErrCodeBadFlag,
			fmt.Sprintf("database %s already holds a log (last seq %d)", opts.Database, last))
	}

	result, err := harness.Run(scenario,
		harness.WithEventSink(st),
		harness.WithReceiptSink(st),
		harness.WithLogger(slog.Default()),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	report, err := st.Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify database", err)
	}

	summary := SimulateResult{
		Scenario:     scenario.Name,
		Database:     opts.Database,
		Pass:         result.Pass,
		Transactions: len(result.Receipts),
		Events:       report.Events,
		TraceHash:    report.TraceHash,
		Errors:       result.Errors,
	}
	for _, r := range result.Receipts {
		if r.Status == ir.StatusReverted {
			summary.Reverted++
		}
	}

	if formatter.JSON() {
		if summary.Pass {
			return formatter.Success(summary)
		}
		if err := formatter.Failure(summary, ErrCodeTestFailed, "scenario failed"); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "scenario failed")
	}

	w := formatter.Writer
	mark := "✓"
	if !summary.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, summary.Scenario)
	fmt.Fprintf(w, "  Transactions: %d (%d reverted)\n", summary.Transactions, summary.Reverted)
	fmt.Fprintf(w, "  Events: %d\n", summary.Events)
	fmt.Fprintf(w, "  Trace hash: %s\n", summary.TraceHash)
	fmt.Fprintf(w, "  Database: %s\n", summary.Database)
	for _, e := range summary.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if !summary.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}
