package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReindexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index and report its size",
		Long: `Rebuild the search index from every stored page.

The index lives in memory, so this checks that every page can be read and
indexed. It also creates the home page when it is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReindex(cmd.Context(), cmd, *configPath)
		},
	}
}

func runReindex(ctx context.Context, cmd *cobra.Command, configPath string) error {
	return withApp(ctx, configPath, func(a *app) error {
		start := time.Now()
		if err := a.wiki.Reindex(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d pages in %s\n",
			a.wiki.IndexedDocuments(), time.Since(start).Round(time.Millisecond))
		return nil
	})
}
