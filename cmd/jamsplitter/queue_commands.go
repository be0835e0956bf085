package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jamsplitter/internal/config"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/status"
	"jamsplitter/internal/stemcache"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				var statuses []queue.Status
				if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
					parsed, ok := queue.ParseStatus(trimmed)
					if !ok {
						return fmt.Errorf("unknown status %q", trimmed)
					}
					statuses = append(statuses, parsed)
				}

				reporter := status.NewReporter(store, cache)
				views, err := reporter.QueueSnapshot(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				colorize := stdoutIsTerminal()
				fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(views, colorize))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by status (queued, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue statistics and database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, map[string]any{
						"queue":    summary,
						"database": db,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Jobs: %d total", summary.Total)
				for _, part := range []struct {
					count int
					label queue.Status
				}{
					{summary.Queued, queue.StatusQueued},
					{summary.Processing, queue.StatusProcessing},
					{summary.Completed, queue.StatusCompleted},
					{summary.Failed, queue.StatusFailed},
				} {
					if part.count > 0 {
						fmt.Fprintf(out, ", %d %s", part.count, part.label)
					}
				}
				fmt.Fprintln(out)
				healthy := db.Error == "" && db.TableExists && db.IntegrityCheck
				fmt.Fprintf(out, "Database: %s (healthy: %s)\n", db.DBPath, yesNo(healthy))
				if db.Error != "" {
					fmt.Fprintf(out, "Last error: %s\n", db.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completedFlag bool
	var failedFlag bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				var (
					removed int64
					err     error
					label   string
				)
				switch {
				case completedFlag && failedFlag:
					return fmt.Errorf("use at most one of --completed and --failed")
				case completedFlag:
					removed, err = store.ClearCompleted(cmd.Context())
					label = "completed jobs"
				case failedFlag:
					removed, err = store.ClearFailed(cmd.Context())
					label = "failed jobs"
				default:
					removed, err = store.Clear(cmd.Context())
					label = "jobs"
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completedFlag, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&failedFlag, "failed", false, "Remove only failed jobs")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [JOB_ID...]",
		Short: "Requeue failed jobs (all failed jobs when no IDs are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				requeued, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed job(s)\n", requeued)
				return nil
			})
		},
	}
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
