package cli

import (
	"github.com/spf13/cobra"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "fetch <humVersionId>...",
		Short: "Fetch the detail and release pages of each humVersionId into the cache",
		Args:  cobra.MatchAll(cobra.MinimumNArgs(1), humVersionIDArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			rep, err := cliCtx.Stages.Fetch(cmd.Context(), args, refresh)
			if err != nil {
				return err
			}
			return reportOutcome(cliCtx, "fetch", rep)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch pages even when a cache entry exists")
	return cmd
}
