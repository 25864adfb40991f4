package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server-wide usage counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var stats adminStats
		if err := client.getJSON("/api/admin/stats", &stats); err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(stats)
		}

		printTable(
			[]string{"users", "apps", "versions", "downloads"},
			[][]string{{
				fmt.Sprintf("%d", stats.TotalUsers),
				fmt.Sprintf("%d", stats.TotalApps),
				fmt.Sprintf("%d", stats.TotalVersions),
				fmt.Sprintf("%d", stats.TotalDownloads),
			}},
		)
		return nil
	},
}
