package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukaswerner/starmirror/internal/client"
)

var (
	enrichMax   int
	enrichWatch bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch and embed readmes for mirrored repositories",
	Long: `Trigger a readme enrichment run on the server. Each repository's readme
is fetched, normalized, embedded, and written to the vector index.
Readmes whose content has not changed since the last run are skipped.

Examples:
  starmirror enrich
  starmirror enrich --max 50
  starmirror enrich --watch`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().IntVarP(&enrichMax, "max", "m", 0, "limit the number of repositories processed (0 = all)")
	enrichCmd.Flags().BoolVarP(&enrichWatch, "watch", "w", false, "follow progress until the run completes")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.TriggerReadmes(ctx, enrichMax); err != nil {
		if client.IsConflict(err) {
			return fmt.Errorf("an enrichment run is already running, check 'starmirror status'")
		}
		return fmt.Errorf("trigger enrichment: %w", err)
	}

	if !enrichWatch {
		fmt.Println("Enrichment started. Use 'starmirror status' or 'starmirror watch' to follow progress.")
		return nil
	}
	return watchJobs(ctx)
}
