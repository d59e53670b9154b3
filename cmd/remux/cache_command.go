package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"remux/internal/ipc"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache utilities",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache population and disk headroom",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stats, err := client.CacheStats()
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Entries", fmt.Sprintf("%d", stats.Entries)},
					{"Source bytes", formatBytes(stats.SourceBytes)},
					{"Output bytes", formatBytes(stats.OutputBytes)},
					{"Pinned keys", fmt.Sprintf("%d", stats.PinnedKeys)},
					{"Free disk", formatBytes(int64(stats.FreeBytes))},
					{"Total disk", formatBytes(int64(stats.TotalFSBytes))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Metric", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func formatBytes(value int64) string {
	const unit = 1024
	if value < unit {
		return fmt.Sprintf("%d B", value)
	}
	div, exp := int64(unit), 0
	for n := value / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(value)/float64(div), "KMGTPE"[exp])
}
