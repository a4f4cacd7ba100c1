package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <repo-id>",
	Short: "Show one mirrored repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid repository id: %s", args[0])
	}

	repo, err := apiClient.GetRepo(context.Background(), id)
	if err != nil {
		return fmt.Errorf("get repository: %w", err)
	}

	fmt.Printf("%s\n", repo.FullName)
	if repo.Description != nil && *repo.Description != "" {
		fmt.Printf("  %s\n", *repo.Description)
	}
	fmt.Printf("  URL:      %s\n", repo.HTMLURL)
	if repo.Language != nil {
		fmt.Printf("  Language: %s\n", *repo.Language)
	}
	fmt.Printf("  Stars:    %d\n", repo.StargazersCount)
	fmt.Printf("  Forks:    %d\n", repo.ForksCount)
	fmt.Printf("  Issues:   %d\n", repo.OpenIssuesCount)
	if repo.LicenseName != nil {
		fmt.Printf("  License:  %s\n", *repo.LicenseName)
	}
	fmt.Printf("  Starred:  %s\n", repo.StarredAt.Local().Format(time.RFC822))
	if repo.SyncedAt != nil {
		fmt.Printf("  Synced:   %s\n", repo.SyncedAt.Local().Format(time.RFC822))
	}
	if repo.Topics != "" && repo.Topics != "[]" {
		fmt.Printf("  Topics:   %s\n", repo.Topics)
	}
	return nil
}
