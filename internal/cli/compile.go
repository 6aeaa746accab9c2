package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/admin"
	"github.com/roach88/rigs/internal/compiler"
	"github.com/roach88/rigs/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// RigSummary is the flattened, display-ready form of one compiled rig.
// Amounts are base-10 strings.
type RigSummary struct {
	Kind    string            `json:"kind"`
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Params  map[string]string `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <file.cue|dir>...",
		Short: "Compile rig definitions to canonical JSON",
		Long: `Compile CUE rig definitions and print every rig with its resolved
parameters. With --output the canonical JSON is also written to a file.

Examples:
  rigs compile ./rigs
  rigs compile gold.cue wheel.cue -o rigs.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	defs, err := LoadDefinitions(paths)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	summaries := SummarizeDefinitions(defs)
	for _, s := range summaries {
		formatter.VerboseLog("Compiled %s %s at %s", s.Kind, s.Name, s.Address)
	}

	if opts.Output != "" {
		data, err := ir.MarshalCanonical(summariesToCanonical(summaries))
		if err != nil {
			return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("encoding output: %v", err))
		}
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d rig(s)\n\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(w, "%s %s (%s)\n", s.Kind, s.Name, s.Address)
		for _, key := range sortedParamKeys(s.Params) {
			fmt.Fprintf(w, "  %-20s %s\n", key, s.Params[key])
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote canonical JSON to %s\n", opts.Output)
	}
	return nil
}

// SummarizeDefinitions flattens compiled definitions in kind then name
// order.
func SummarizeDefinitions(defs *compiler.Definitions) []RigSummary {
	out := make([]RigSummary, 0, defs.Count())
	for _, m := range defs.Mines {
		c := m.Config
		p := map[string]string{
			"name":                c.Name,
			"symbol":              c.Symbol,
			"quote":               m.Quote.Hex(),
			"unit":                m.Unit.Hex(),
			"epoch_period":        u64(c.EpochPeriod),
			"price_multiplier":    amount(c.PriceMultiplier),
			"min_init_price":      amount(c.MinInitPrice),
			"initial_ups":         amount(c.InitialUps),
			"tail_ups":            amount(c.TailUps),
			"halving_amount":      amount(c.HalvingAmount),
			"ups_multipliers":     amounts(c.UpsMultipliers),
			"multiplier_duration": u64(c.MultiplierDuration),
			"capacity":            u64(c.Capacity),
			"randomness":          strconv.FormatBool(c.RandomnessEnabled),
		}
		addSettings(p, c.Settings)
		out = append(out, RigSummary{Kind: "mine", Name: m.Name, Address: m.Address.Hex(), Params: p})
	}
	for _, s := range defs.Spins {
		c := s.Config
		odds := make([]string, len(c.Odds))
		for i, o := range c.Odds {
			odds[i] = u64(o)
		}
		p := map[string]string{
			"quote":            s.Quote.Hex(),
			"unit":             s.Unit.Hex(),
			"epoch_period":     u64(c.EpochPeriod),
			"price_multiplier": amount(c.PriceMultiplier),
			"min_init_price":   amount(c.MinInitPrice),
			"initial_ups":      amount(c.InitialUps),
			"tail_ups":         amount(c.TailUps),
			"halving_period":   u64(c.HalvingPeriod),
			"odds":             strings.Join(odds, ","),
		}
		if c.InitPrice != nil {
			p["init_price"] = amount(c.InitPrice)
		}
		addSettings(p, c.Settings)
		out = append(out, RigSummary{Kind: "spin", Name: s.Name, Address: s.Address.Hex(), Params: p})
	}
	for _, f := range defs.Funds {
		c := f.Config
		p := map[string]string{
			"quote":            f.Quote.Hex(),
			"unit":             f.Unit.Hex(),
			"recipient":        c.Recipient.Hex(),
			"initial_emission": amount(c.InitialEmission),
			"min_emission":     amount(c.MinEmission),
			"halving_period":   u64(c.HalvingPeriod),
		}
		addSettings(p, c.Settings)
		out = append(out, RigSummary{Kind: "fund", Name: f.Name, Address: f.Address.Hex(), Params: p})
	}
	for _, a := range defs.Auctions {
		c := a.Config
		p := map[string]string{
			"init_price":       amount(c.InitPrice),
			"payment_token":    c.PaymentToken.Hex(),
			"epoch_period":     u64(c.EpochPeriod),
			"price_multiplier": amount(c.PriceMultiplier),
			"min_init_price":   amount(c.MinInitPrice),
		}
		if c.PaymentReceiver != (common.Address{}) {
			p["payment_receiver"] = c.PaymentReceiver.Hex()
		}
		out = append(out, RigSummary{Kind: "auction", Name: a.Name, Address: a.Address.Hex(), Params: p})
	}
	return out
}

func addSettings(p map[string]string, s admin.Settings) {
	p["owner"] = s.Owner.Hex()
	p["treasury"] = s.Treasury.Hex()
	if s.Team != (common.Address{}) {
		p["team"] = s.Team.Hex()
	}
	if s.URI != "" {
		p["uri"] = s.URI
	}
}

func summariesToCanonical(summaries []RigSummary) []any {
	out := make([]any, len(summaries))
	for i, s := range summaries {
		params := make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			params[k] = v
		}
		out[i] = map[string]any{
			"kind":    s.Kind,
			"name":    s.Name,
			"address": s.Address,
			"params":  params,
		}
	}
	return out
}

func u64(n uint64) string { return strconv.FormatUint(n, 10) }

func amount(x *uint256.Int) string {
	if x == nil {
		return ""
	}
	return x.Dec()
}

func amounts(xs []*uint256.Int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = amount(x)
	}
	return strings.Join(parts, ",")
}

// outputLoadError reports a definition loading error and returns the
// matching exit error: missing paths are command errors, invalid
// definitions are failures.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	var details any
	if loadErr.Field != "" {
		details = map[string]any{"field": loadErr.Field}
	}
	message := loadErr.Message
	if loadErr.Pos.IsValid() {
		message = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), message)
	}
	if werr := formatter.Error(loadErr.Code, message, details); werr != nil {
		return werr
	}
	code := ExitFailure
	if loadErr.Code == ErrCodeNotFound || loadErr.Code == ErrCodeNoFiles {
		code = ExitCommandError
	}
	return WrapExitError(code, "loading definitions failed", loadErr)
}

// outputCommandError reports an error that is not about the definitions
// themselves and exits with ExitCommandError.
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	if err := formatter.Error(code, message, nil); err != nil {
		return err
	}
	return NewExitError(ExitCommandError, message)
}

func sortedParamKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
