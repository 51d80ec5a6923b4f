package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete rate-limit entries older than the throttle window",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			repos, closeStore, err := a.openStore(false)
			if err != nil {
				return err
			}
			defer closeStore()

			cutoff := time.Now().Add(-a.cfg.RateLimit.Window)
			n, err := repos.RateLimit.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			a.log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Rate-limit entries pruned")
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		}),
	}
}
