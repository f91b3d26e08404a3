package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd(configPath *string) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search page names and content",
		Long: `Search page names and content using the query string syntax:
plain terms, quoted phrases, +required and -excluded terms, and field
prefixes such as page_name:alpha.`,
		Example: `  ddwiki search rocket fuel
  ddwiki search 'page_name:projects' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, *configPath, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results, 0 for all")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, configPath, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	return withApp(ctx, configPath, func(a *app) error {
		hits, err := a.wiki.SearchPages(ctx, query, opts.limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if opts.format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		}
		if len(hits) == 0 {
			fmt.Fprintf(out, "No results for %q\n", query)
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "%d. %s (%s) score %.3f\n", i+1, h.Title, h.Page.DisplayName(), h.Score)
		}
		return nil
	})
}
