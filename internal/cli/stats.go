package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	statsOwners  bool
	statsMetrics bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mirror statistics",
	Long: `Show collection-wide statistics: totals, top languages, and enrichment
coverage.

Examples:
  starmirror stats
  starmirror stats --owners
  starmirror stats --metrics`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsOwners, "owners", false, "include per-owner counts")
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "include server operation timings")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stats, err := apiClient.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Repositories: %d\n", stats.TotalRepos)
	fmt.Printf("Total stars:  %d\n", stats.TotalStars)
	fmt.Printf("Total forks:  %d\n", stats.TotalForks)

	if len(stats.TopLanguages) > 0 {
		fmt.Println("\nTop languages:")
		for _, lang := range stats.TopLanguages {
			fmt.Printf("  %-20s %d\n", lang.Language, lang.Count)
		}
	}

	readmeStats, err := apiClient.ReadmeStats(ctx)
	if err != nil {
		return fmt.Errorf("get readme stats: %w", err)
	}
	fmt.Printf("\nEnrichment: %d/%d readmes processed (%s), %d vector documents\n",
		readmeStats.ProcessedRepos, readmeStats.TotalRepos,
		readmeStats.ProcessingRate, readmeStats.VectorDocuments)

	if statsOwners {
		owners, err := apiClient.Owners(ctx)
		if err != nil {
			return fmt.Errorf("get owners: %w", err)
		}
		fmt.Println("\nOwners:")
		for _, owner := range owners {
			fmt.Printf("  %-25s %d\n", owner.Owner, owner.Count)
		}
	}

	if statsMetrics {
		snap, err := apiClient.Metrics(ctx)
		if err != nil {
			return fmt.Errorf("get metrics: %w", err)
		}
		fmt.Printf("\nServer statistics (in-memory, since restart)\n")
		fmt.Printf("Uptime: %.0fs\n", snap.UptimeSeconds)

		names := make([]string, 0, len(snap.Operations))
		for name := range snap.Operations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			op := snap.Operations[name]
			fmt.Printf("  %-15s calls %d, avg %.1fms, min %dms, max %dms\n",
				name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
		}
	}

	return nil
}
