package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jamsplitter/internal/config"
	"jamsplitter/internal/pipeline"
	"jamsplitter/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "submit URL",
		Short: "Queue a URL for stem separation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(cfg *config.Config, store *queue.Store, orch *pipeline.Orchestrator) error {
				jobID, err := orch.Submit(cmd.Context(), args[0], formatFlag)
				if err != nil {
					return err
				}
				job, err := store.GetByID(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, map[string]any{
						"jobId":  jobID,
						"status": string(job.Status),
					})
				}
				if job.Status == queue.StatusCompleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed from cache\n", jobID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued\n", jobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Output format for the stems (defaults to the configured format)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "process URL",
		Short: "Run the full pipeline for a URL and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(cfg *config.Config, store *queue.Store, orch *pipeline.Orchestrator) error {
				job, err := orch.Process(cmd.Context(), args[0], formatFlag)
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, map[string]any{
						"jobId":    job.ID,
						"status":   string(job.Status),
						"progress": job.Progress,
						"error":    job.ErrorMessage,
					})
				}
				switch job.Status {
				case queue.StatusCompleted:
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed\n", job.ID)
				case queue.StatusFailed:
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s failed: %s\n", job.ID, job.ErrorMessage)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, job.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Output format for the stems (defaults to the configured format)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}
