package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newPagesCmd(configPath *string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List every page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPages(cmd.Context(), cmd, *configPath, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runPages(ctx context.Context, cmd *cobra.Command, configPath string, jsonOutput bool) error {
	return withApp(ctx, configPath, func(a *app) error {
		pages, err := a.wiki.ListPages(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(pages)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tADDRESS\tSEGMENTS\tFILES\tMODIFIED")
		for _, p := range pages {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n",
				p.ID, p.DisplayName(), len(p.Contents), len(p.Attachments),
				p.LastModified.Local().Format(time.DateTime))
		}
		return tw.Flush()
	})
}
