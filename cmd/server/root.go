package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the CLI; running it without a subcommand starts the server
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Parts submission API",
		Long:         "Accepts part submissions, opens review pull requests and serves the admin review console.",
		SilenceUsage: true,
		RunE:         withApp(runServe),
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newAuditCmd(),
		newPruneCmd(),
	)
	return root
}
