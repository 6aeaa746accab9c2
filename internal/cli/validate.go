package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool `json:"valid"`
	Rigs  int  `json:"rigs"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file.cue|dir>...",
		Short: "Validate rig definitions",
		Long: `Compile CUE rig definitions and check every bound: schema
constraints, each rig's own configuration rules and unique addresses.

Exit codes:
  0 - All definitions are valid
  1 - A definition is invalid
  2 - Command error (missing files, etc.)

Examples:
  rigs validate ./rigs
  rigs validate gold.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("Validating %d path(s)", len(paths))

	defs, err := LoadDefinitions(paths)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	for _, rig := range defs.Rigs() {
		formatter.VerboseLog("Valid %s: %s", rig.Kind, rig.Name)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Rigs: defs.Count()})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d rig definition(s) valid\n", defs.Count())
	return nil
}
