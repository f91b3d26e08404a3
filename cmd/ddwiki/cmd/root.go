// Package cmd provides the CLI commands for ddwiki.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the ddwiki CLI.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ddwiki",
		Short: "Markdown wiki with attachments and full-text search",
		Long: `ddwiki stores wiki pages, their content segments and attached files
in any supported database and serves them over a JSON API.

Settings come from the defaults, an optional config file (--config) and
DDWIKI_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML, or JSON with comments)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newReindexCmd(&configPath))
	cmd.AddCommand(newSearchCmd(&configPath))
	cmd.AddCommand(newPagesCmd(&configPath))
	cmd.AddCommand(newConfigCmd(&configPath))

	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
