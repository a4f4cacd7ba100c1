package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all mirrored repositories",
	Long: `Delete every repository record from the mirror. Enrichment data stays
in place and is reconciled on the next sync and enrich runs.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		fmt.Print("Delete all mirrored repositories? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			exitWithError("read confirmation: %v", err)
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, err := apiClient.DeleteAllRepos(context.Background())
	if err != nil {
		return fmt.Errorf("delete repositories: %w", err)
	}
	fmt.Printf("Deleted %d repositories.\n", deleted)
	return nil
}
