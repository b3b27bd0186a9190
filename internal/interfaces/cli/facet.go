package cli

import (
	"github.com/spf13/cobra"
)

// NewFacetNormalizeCmd creates the facet-normalize command.
func NewFacetNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "facet-normalize",
		Short: "Rewrite dataset facet values through the TSV mapping tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.FacetNormalize(cmd.Context())
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "facet-normalize", rep)
		},
	}
}
