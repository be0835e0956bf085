package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"jamsplitter/internal/artifacts"
	"jamsplitter/internal/config"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/status"
	"jamsplitter/internal/stemcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the stem cache",
	}

	cacheCmd.AddCommand(newCacheLookupCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheLookupCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "lookup URL",
		Short: "Show cached stems for a source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				reporter := status.NewReporter(store, cache)
				view, err := reporter.CacheLookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				if view == nil {
					fmt.Fprintln(out, "No cached stems for this URL")
					return nil
				}
				fmt.Fprintf(out, "URL:    %s\n", view.SourceURL)
				fmt.Fprintf(out, "Cached: %s\n", timeCell(view.CreatedAt))
				printStemPaths(out, view.Stems)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}

func printStemPaths(out io.Writer, stems map[string]string) {
	if len(stems) == 0 {
		fmt.Fprintln(out, "Stems:  none")
		return
	}
	names := make([]string, 0, len(stems))
	for name := range stems {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "Stems:")
	for _, name := range names {
		fmt.Fprintf(out, "  - %s: %s\n", stemDisplayName(name), stems[name])
	}
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stem cache and output directory usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				count, err := cache.Count(cmd.Context())
				if err != nil {
					return err
				}

				manager := artifacts.NewManager(cfg, logging.NewNop())
				var diskStats *artifacts.Stats
				if manager != nil {
					stats, err := manager.Stats(cmd.Context())
					if err != nil {
						return err
					}
					diskStats = &stats
				}

				if jsonFlag {
					payload := map[string]any{"cachedUrls": count}
					if diskStats != nil {
						payload["outputs"] = diskStats
					}
					return writeJSON(cmd, payload)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cached URLs: %d\n", count)
				if diskStats == nil {
					fmt.Fprintln(out, "Output directory is not configured")
					return nil
				}
				fmt.Fprintf(out, "Outputs:     %d entries, %s / %s\n",
					diskStats.Entries, humanBytes(diskStats.TotalBytes), humanBytes(diskStats.MaxBytes))
				fmt.Fprintf(out, "Disk:        %s free (%.1f%%)\n",
					humanBytes(int64(diskStats.FreeBytes)), diskStats.FreeRatio*100)
				printOutputEntries(out, diskStats.EntrySummaries)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable output")
	return cmd
}

func printOutputEntries(out io.Writer, entries []artifacts.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Output entries: none")
		return
	}
	const stampLayout = "2006-01-02 15:04"
	fmt.Fprintln(out, "Output entries:")
	for _, entry := range entries {
		label := filepath.Base(entry.Directory)
		if label == "" {
			label = entry.Directory
		}
		extra := ""
		if entry.StemCount > 1 {
			extra = fmt.Sprintf(" (%d stems)", entry.StemCount)
		} else if primary := strings.TrimSpace(entry.PrimaryStem); primary != "" {
			extra = fmt.Sprintf(" (%s)", stemDisplayName(primary))
		}
		updated := "unknown"
		if !entry.ModifiedAt.IsZero() {
			updated = entry.ModifiedAt.Local().Format(stampLayout)
		}
		fmt.Fprintf(out, "  - %s%s: %s (updated %s)\n",
			label,
			extra,
			humanBytes(entry.SizeBytes),
			updated,
		)
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Prune old output directories now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager := artifacts.NewManager(cfg, logging.NewNop())
			if manager == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Output directory is not configured")
				return nil
			}
			before, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if err := manager.Prune(cmd.Context(), ""); err != nil {
				return err
			}
			after, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			freed := before.TotalBytes - after.TotalBytes
			if freed <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No output entries pruned")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s (now %s / %s)\n",
				humanBytes(freed), humanBytes(after.TotalBytes), humanBytes(after.MaxBytes))
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove URL",
		Short: "Drop cached stems and their output files for a source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				set, err := cache.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				removed, err := cache.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintln(cmd.OutOrStdout(), "No cached stems for this URL")
					return nil
				}

				// Dropping the row alone would leave the job's output
				// directory behind; remove both sides together.
				manager := artifacts.NewManager(cfg, logging.NewNop())
				cleaned := 0
				if manager != nil && set != nil {
					for dir := range outputDirsFor(manager.Root(), set.Stems) {
						if err := manager.Remove(cmd.Context(), dir); err != nil {
							return err
						}
						cleaned++
					}
				}
				if cleaned > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Removed cached stems and output files")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Removed cached stems")
				return nil
			})
		},
	}
}

// outputDirsFor maps cached stem paths to the job directories under the
// artifact root that hold them.
func outputDirsFor(root string, stems map[string]string) map[string]struct{} {
	dirs := make(map[string]struct{})
	if root == "" {
		return dirs
	}
	root = filepath.Clean(root)
	for _, path := range stems {
		dir := filepath.Dir(filepath.Clean(path))
		if filepath.Dir(dir) == root {
			dirs[filepath.Base(dir)] = struct{}{}
		}
	}
	return dirs
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached stem mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
				removed, err := cache.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", removed)
				return nil
			})
		},
	}
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(v) / float64(div)
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPEZY"[exp])
}
