package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukaswerner/starmirror/internal/client"
)

var syncWatch bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror all starred repositories",
	Long: `Trigger a full mirror run on the server. Every starred repository is
fetched from GitHub and written to the local mirror wholesale.

Examples:
  starmirror sync
  starmirror sync --watch`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "follow progress until the run completes")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := apiClient.TriggerSync(ctx); err != nil {
		if client.IsConflict(err) {
			return fmt.Errorf("a sync is already running, check 'starmirror status'")
		}
		return fmt.Errorf("trigger sync: %w", err)
	}

	if !syncWatch {
		fmt.Println("Sync started. Use 'starmirror status' or 'starmirror watch' to follow progress.")
		return nil
	}
	return watchJobs(ctx)
}
