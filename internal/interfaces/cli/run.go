package cli

import (
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command: the full chain under one run ID.
func NewRunCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "run <humVersionId>...",
		Short: "Run the full pipeline (fetch through index) for each humVersionId",
		Args:  cobra.MatchAll(cobra.MinimumNArgs(1), humVersionIDArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			reports, err := cliCtx.Stages.RunAll(cmd.Context(), args, refresh)
			if err != nil {
				return err
			}
			var failed error
			for _, rep := range reports {
				if err := reportOutcome(cliCtx, "run", rep); err != nil {
					failed = err
				}
			}
			return failed
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch pages even when a cache entry exists")
	return cmd
}
