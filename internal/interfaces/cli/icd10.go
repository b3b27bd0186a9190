package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// NewICD10NormalizeCmd creates the icd10-normalize command.
func NewICD10NormalizeCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "icd10-normalize",
		Short: "Rewrite dataset disease annotations against the ICD10 master table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, violations, err := cliCtx.Stages.ICD10Normalize(cmd.Context(), check)
			if err != nil {
				return err
			}
			if err := reportOutcome(cliCtx, "icd10-normalize", rep); err != nil {
				return err
			}
			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(cmd.OutOrStdout(), v.String())
				}
				return errors.Newf(errors.ErrCodeICD10Violation, "%d icd10 violations", len(violations))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "validate only; report violations without rewriting")
	return cmd
}
