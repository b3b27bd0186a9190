package cli

import (
	"github.com/spf13/cobra"
)

// NewParseCmd creates the parse command.
func NewParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <humVersionId>...",
		Short: "Parse the cached HTML of each humVersionId into raw detail records",
		Args:  cobra.MatchAll(cobra.MinimumNArgs(1), humVersionIDArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.Parse(cmd.Context(), args)
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "parse", rep)
		},
	}
}
