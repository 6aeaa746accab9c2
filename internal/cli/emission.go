package cli

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/roach88/rigs/internal/emission"
)

// EmissionOptions holds flags shared by the emission subcommands.
type EmissionOptions struct {
	*RootOptions
	Initial  string
	Floor    string
	Decimals int32
}

// EmissionResult is the rate of a schedule at one point.
type EmissionResult struct {
	Schedule string `json:"schedule"`
	At       string `json:"at"`
	Halvings uint64 `json:"halvings"`
	Rate     string `json:"rate"`
	Next     string `json:"next,omitempty"` // next threshold or halving time
}

// NewEmissionCommand creates the emission command and its subcommands.
func NewEmissionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emission",
		Short: "Evaluate halving schedules",
		Long: `Evaluate one of the three halving schedules:

  supply - mine rigs, halving as total minted supply crosses thresholds
  time   - spin rigs, halving every period seconds
  day    - fund rigs, halving every period days`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newEmissionSupplyCommand(rootOpts))
	cmd.AddCommand(newEmissionTimeCommand(rootOpts))
	cmd.AddCommand(newEmissionDayCommand(rootOpts))

	return cmd
}

func addRateFlags(cmd *cobra.Command, opts *EmissionOptions, initial, floor string) {
	cmd.Flags().StringVar(&opts.Initial, initial, "", "starting rate (required)")
	_ = cmd.MarkFlagRequired(initial)
	cmd.Flags().StringVar(&opts.Floor, floor, "", "rate floor (required)")
	_ = cmd.MarkFlagRequired(floor)
	cmd.Flags().Int32Var(&opts.Decimals, "decimals", 0, "display decimals of the unit token")
}

func newEmissionSupplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmissionOptions{RootOptions: rootOpts}
	var halvingAmount, minted string

	cmd := &cobra.Command{
		Use:   "supply",
		Short: "Rate after a given total minted supply",
		Example: `  rigs emission supply --initial-ups 4_000_000_000_000_000_000 --tail-ups 10_000_000_000_000_000 \
    --halving-amount 10_000_000_000_000_000_000_000 --minted 12_000_000_000_000_000_000_000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			initial, floor, err := opts.rates("initial-ups", "tail-ups")
			if err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}
			amount, err := parseAmountFlag("halving-amount", halvingAmount)
			if err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}
			total, err := parseAmountFlag("minted", minted)
			if err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}

			s := emission.SupplySchedule{InitialUps: initial, TailUps: floor, HalvingAmount: amount}
			if err := s.Validate(); err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}
			n := s.Halvings(total)
			result := EmissionResult{
				Schedule: "supply",
				At:       formatAmount(total, opts.Decimals),
				Halvings: n,
				Rate:     formatAmount(s.Ups(total), opts.Decimals),
			}
			if n < emission.MaxHalvings {
				if next, ok := s.Threshold(n); ok {
					result.Next = formatAmount(next, opts.Decimals)
				}
			}
			return outputEmission(formatter, result, "minted", "next threshold")
		},
	}

	addRateFlags(cmd, opts, "initial-ups", "tail-ups")
	cmd.Flags().StringVar(&halvingAmount, "halving-amount", "", "supply of the first halving (required)")
	_ = cmd.MarkFlagRequired("halving-amount")
	cmd.Flags().StringVar(&minted, "minted", "0", "total minted supply")

	return cmd
}

func newEmissionTimeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmissionOptions{RootOptions: rootOpts}
	var period, start, now uint64

	cmd := &cobra.Command{
		Use:   "time",
		Short: "Rate at a given time",
		Example: `  rigs emission time --initial-ups 4_000_000_000_000_000_000 --tail-ups 10_000_000_000_000_000 \
    --halving-period 2592000 --start 1700000000 --now 1705000000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			initial, floor, err := opts.rates("initial-ups", "tail-ups")
			if err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}

			s := emission.TimeSchedule{InitialUps: initial, TailUps: floor, HalvingPeriod: period, Start: start}
			if err := s.Validate(); err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}
			result := EmissionResult{
				Schedule: "time",
				At:       strconv.FormatUint(now, 10),
				Halvings: s.Halvings(now),
				Rate:     formatAmount(s.Ups(now), opts.Decimals),
				Next:     strconv.FormatUint(s.NextHalving(now), 10),
			}
			return outputEmission(formatter, result, "time", "next halving")
		},
	}

	addRateFlags(cmd, opts, "initial-ups", "tail-ups")
	cmd.Flags().Uint64Var(&period, "halving-period", 0, "seconds between halvings (required)")
	_ = cmd.MarkFlagRequired("halving-period")
	cmd.Flags().Uint64Var(&start, "start", 0, "schedule start time")
	cmd.Flags().Uint64Var(&now, "now", 0, "time to evaluate at")

	return cmd
}

func newEmissionDayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmissionOptions{RootOptions: rootOpts}
	var period, day uint64

	cmd := &cobra.Command{
		Use:   "day",
		Short: "Emission of a given day",
		Example: `  rigs emission day --initial 1_000_000_000_000_000_000_000 --min 1_000_000_000_000_000_000 \
    --halving-period 30 --day 95`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			initial, floor, err := opts.rates("initial", "min")
			if err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}

			s := emission.DaySchedule{InitialEmission: initial, MinEmission: floor, HalvingPeriod: period}
			if err := s.Validate(); err != nil {
				return outputCommandError(formatter, ErrCodeBadFlag, err.Error())
			}
			result := EmissionResult{
				Schedule: "day",
				At:       strconv.FormatUint(day, 10),
				Halvings: s.Halvings(day),
				Rate:     formatAmount(s.Emission(day), opts.Decimals),
				Next:     strconv.FormatUint((s.Halvings(day)+1)*period, 10),
			}
			return outputEmission(formatter, result, "day", "next halving day")
		},
	}

	addRateFlags(cmd, opts, "initial", "min")
	cmd.Flags().Uint64Var(&period, "halving-period", 0, "days between halvings (required)")
	_ = cmd.MarkFlagRequired("halving-period")
	cmd.Flags().Uint64Var(&day, "day", 0, "day index")

	return cmd
}

func (o *EmissionOptions) rates(initialFlag, floorFlag string) (initial, floor *uint256.Int, err error) {
	if initial, err = parseAmountFlag(initialFlag, o.Initial); err != nil {
		return nil, nil, err
	}
	if floor, err = parseAmountFlag(floorFlag, o.Floor); err != nil {
		return nil, nil, err
	}
	return initial, floor, nil
}

func outputEmission(formatter *OutputFormatter, result EmissionResult, atLabel, nextLabel string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "Rate: %s\n", result.Rate)
	fmt.Fprintf(w, "  %s: %s\n", atLabel, result.At)
	fmt.Fprintf(w, "  halvings: %d\n", result.Halvings)
	if result.Next != "" {
		fmt.Fprintf(w, "  %s: %s\n", nextLabel, result.Next)
	}
	return nil
}
