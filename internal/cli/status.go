package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukaswerner/starmirror/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the sync and enrichment jobs",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	syncStatus, err := apiClient.SyncStatus(ctx)
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}
	readmeStatus, err := apiClient.ReadmeStatus(ctx)
	if err != nil {
		return fmt.Errorf("get readme status: %w", err)
	}

	printJobStatus("Sync", syncStatus)
	fmt.Println()
	printJobStatus("Enrichment", readmeStatus)

	jobs, err := apiClient.ScheduledJobs(ctx)
	if err != nil {
		return fmt.Errorf("get scheduled jobs: %w", err)
	}
	if len(jobs) > 0 {
		fmt.Println("\nScheduled jobs:")
		for _, job := range jobs {
			fmt.Printf("  %-25s next run %s\n", job.Name, job.NextRunAt.Local().Format("Mon 15:04"))
		}
	}

	return nil
}

func printJobStatus(name string, status *models.RunStatus) {
	state := "idle"
	if status.Running {
		state = "running"
	}
	fmt.Printf("%s: %s\n", name, state)
	if status.Message != "" {
		fmt.Printf("  %s\n", status.Message)
	}
	if status.Running && status.ProcessedCount > 0 {
		fmt.Printf("  Processed: %d\n", status.ProcessedCount)
	}
	if status.LastRunAt != nil {
		fmt.Printf("  Last run: %s (%s ago)\n",
			status.LastRunAt.Local().Format(time.RFC822),
			time.Since(*status.LastRunAt).Round(time.Second))
	}
	if verbose && status.RunID != "" {
		fmt.Printf("  Run ID: %s\n", status.RunID)
	}
}
