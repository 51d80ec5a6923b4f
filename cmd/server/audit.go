package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/audit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/catalog"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

func newAuditCmd() *cobra.Command {
	var ref string
	var failOnDuplicates bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report catalog records that share an external URL",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			host, err := vcs.NewGitHubClient(a.cfg.GitHub, a.log)
			if err != nil {
				return err
			}
			reader, err := catalog.NewReader(host, a.cfg.Content, a.log)
			if err != nil {
				return err
			}
			if ref == "" {
				ref = a.cfg.GitHub.BaseBranch
			}

			entries, err := reader.Snapshot(cmd.Context(), ref)
			if err != nil {
				return fmt.Errorf("read catalog at %s: %w", ref, err)
			}
			groups := audit.FindDuplicates(entries)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d records scanned, %d duplicate groups\n", len(entries), len(groups))
			for _, g := range groups {
				fmt.Fprintf(out, "\n%s\n", g.Key)
				for _, e := range g.Entries {
					fmt.Fprintf(out, "  %s\t%s\n", e.ID, e.Part.Title)
				}
			}

			if failOnDuplicates && len(groups) > 0 {
				return fmt.Errorf("%d duplicate groups found", len(groups))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Branch or commit to audit (defaults to the base branch)")
	cmd.Flags().BoolVar(&failOnDuplicates, "fail", false, "Exit non-zero when duplicates exist")
	return cmd
}
