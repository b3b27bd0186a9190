package cli

import (
	"github.com/spf13/cobra"

	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// NewStructureCmd creates the structure command.
func NewStructureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structure [humId]...",
		Short: "Merge normalized records into research, version and dataset documents",
		Args: func(_ *cobra.Command, args []string) error {
			for _, a := range args {
				if !research.ValidHumID(a) {
					return errors.New(errors.ErrCodeValidation, "malformed humId argument").WithDetail(a)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.Structure(cmd.Context(), args)
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "structure", rep)
		},
	}
}
