package cli

import (
	"github.com/spf13/cobra"
)

// NewNormalizeCmd creates the normalize command.
func NewNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [humVersionId]...",
		Short: "Canonicalize raw detail records (no arguments: every detail-json artifact)",
		Args:  humVersionIDArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.Normalize(cmd.Context(), args)
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "normalize", rep)
		},
	}
}
