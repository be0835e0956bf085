package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jamsplitter/internal/config"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/status"
	"jamsplitter/internal/stemcache"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				reporter := status.NewReporter(store, cache)
				view, err := reporter.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, view)
				}
				colorize := stdoutIsTerminal()
				fmt.Fprintf(cmd.OutOrStdout(), "Job:      %s\n", view.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "URL:      %s\n", view.SourceURL)
				fmt.Fprintf(cmd.OutOrStdout(), "Status:   %s\n", statusCell(view.Status, colorize))
				fmt.Fprintf(cmd.OutOrStdout(), "Progress: %s\n", progressCell(view.Progress))
				fmt.Fprintf(cmd.OutOrStdout(), "Format:   %s\n", view.OutputFormat)
				fmt.Fprintf(cmd.OutOrStdout(), "Updated:  %s\n", timeCell(view.UpdatedAt))
				if view.ErrorMessage != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Error:    %s\n", view.ErrorMessage)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}
