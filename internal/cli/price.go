package cli

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/pricing"
)

// PriceOptions holds flags for the price command.
type PriceOptions struct {
	*RootOptions
	InitPrice    string
	Start        uint64
	Period       uint64
	Now          uint64
	Multiplier   string
	MinInitPrice string
	Decimals     int32
}

// PriceResult is the quoted Dutch-auction price.
type PriceResult struct {
	InitPrice     string `json:"init_price"`
	Price         string `json:"price"`
	Elapsed       uint64 `json:"elapsed"`
	Remaining     uint64 `json:"remaining"`
	NextInitPrice string `json:"next_init_price,omitempty"`
}

// NewPriceCommand creates the price command.
func NewPriceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Quote a Dutch-auction price",
		Long: `Compute the linear decay price of an epoch at a given time. With
--multiplier and --min-init-price it also prints the next epoch's init
price if the slot were taken now.

Amounts are base-unit integers; underscores are allowed as separators.

Examples:
  rigs price --init-price 1_000_000 --start 1700000000 --period 3600 --now 1700001800
  rigs price --init-price 2_000_000 --period 3600 --now 900 --multiplier 2_000_000_000_000_000_000 --min-init-price 1_000_000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrice(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.InitPrice, "init-price", "", "epoch init price (required)")
	_ = cmd.MarkFlagRequired("init-price")
	cmd.Flags().Uint64Var(&opts.Start, "start", 0, "epoch start time")
	cmd.Flags().Uint64Var(&opts.Period, "period", 0, "epoch period in seconds (required)")
	_ = cmd.MarkFlagRequired("period")
	cmd.Flags().Uint64Var(&opts.Now, "now", 0, "time to price at")
	cmd.Flags().StringVar(&opts.Multiplier, "multiplier", "", "price multiplier, 1e18 = 1x")
	cmd.Flags().StringVar(&opts.MinInitPrice, "min-init-price", "", "minimum init price")
	cmd.Flags().Int32Var(&opts.Decimals, "decimals", 0, "display decimals of the quote token")

	return cmd
}

func runPrice(opts *PriceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	initPrice, err := parseAmountFlag("init-price", opts.InitPrice)
	if err != nil {
		return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
	}
	if opts.Period == 0 {
		return outputCommandError(formatter, ErrCodeBadFlag, "--period must be positive")
	}
	if (opts.Multiplier == "") != (opts.MinInitPrice == "") {
		return outputCommandError(formatter, ErrCodeBadFlag, "--multiplier and --min-init-price go together")
	}

	price := pricing.Price(initPrice, opts.Start, opts.Period, opts.Now)
	result := PriceResult{
		InitPrice: formatAmount(initPrice, opts.Decimals),
		Price:     formatAmount(price, opts.Decimals),
	}
	if opts.Now > opts.Start {
		result.Elapsed = min(opts.Now-opts.Start, opts.Period)
	}
	result.Remaining = opts.Period - result.Elapsed

	if opts.Multiplier != "" {
		mult, err := parseAmountFlag("multiplier", opts.Multiplier)
		if err != nil {
			return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
		}
		floor, err := parseAmountFlag("min-init-price", opts.MinInitPrice)
		if err != nil {
			return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
		}
		params := pricing.Params{EpochPeriod: opts.Period, PriceMultiplier: mult, MinInitPrice: floor}
		if err := params.Validate(); err != nil {
			return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
		}
		result.NextInitPrice = formatAmount(params.Next(price), opts.Decimals)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "Price: %s\n", result.Price)
	fmt.Fprintf(w, "  Init price: %s\n", result.InitPrice)
	fmt.Fprintf(w, "  Elapsed: %ds, remaining: %ds\n", result.Elapsed, result.Remaining)
	if result.NextInitPrice != "" {
		fmt.Fprintf(w, "  Next init price: %s\n", result.NextInitPrice)
	}
	return nil
}

// parseAmountFlag parses a base-10 amount, allowing "_" separators and
// "max" for 2^256-1.
func parseAmountFlag(name, value string) (*uint256.Int, error) {
	if value == "max" {
		return new(uint256.Int).SetAllOne(), nil
	}
	x, err := uint256.FromDecimal(strings.ReplaceAll(value, "_", ""))
	if err != nil {
		return nil, fmt.Errorf("--%s %q: %v", name, value, err)
	}
	return x, nil
}
