package cli

import (
	"github.com/spf13/cobra"
)

// NewIndexCmd creates the index command.
func NewIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Push every structured artifact into the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.Index(cmd.Context())
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "index", rep)
		},
	}
}
