package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lukaswerner/starmirror/internal/client"
	"github.com/lukaswerner/starmirror/internal/models"
)

var (
	searchLanguage string
	searchOwner    string
	searchMinStars int
	searchMaxStars int
	searchTopics   bool
	searchForks    bool
	searchNoForks  bool
	searchPage     int
	searchPerPage  int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search mirrored repositories by metadata",
	Long: `Search the mirror by name, description, and topics, with optional
filters. This matches text literally; use 'semantic' to search readme
content by meaning.

Examples:
  starmirror search "http router"
  starmirror search --language go --min-stars 1000
  starmirror search cli --owner charmbracelet --no-forks`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchLanguage, "language", "l", "", "filter by primary language")
	searchCmd.Flags().StringVarP(&searchOwner, "owner", "o", "", "filter by owner login")
	searchCmd.Flags().IntVar(&searchMinStars, "min-stars", -1, "minimum stargazer count")
	searchCmd.Flags().IntVar(&searchMaxStars, "max-stars", -1, "maximum stargazer count")
	searchCmd.Flags().BoolVar(&searchTopics, "topics", false, "only repositories with topics")
	searchCmd.Flags().BoolVar(&searchForks, "forks", false, "only forks")
	searchCmd.Flags().BoolVar(&searchNoForks, "no-forks", false, "exclude forks")
	searchCmd.Flags().IntVarP(&searchPage, "page", "p", 1, "result page")
	searchCmd.Flags().IntVarP(&searchPerPage, "per-page", "n", 30, "results per page")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts := client.SearchOptions{
		Language:  searchLanguage,
		Owner:     searchOwner,
		HasTopics: searchTopics,
		Page:      searchPage,
		PerPage:   searchPerPage,
	}
	if len(args) == 1 {
		opts.Query = args[0]
	}
	if searchMinStars >= 0 {
		opts.MinStars = &searchMinStars
	}
	if searchMaxStars >= 0 {
		opts.MaxStars = &searchMaxStars
	}
	if searchForks && searchNoForks {
		return fmt.Errorf("--forks and --no-forks are mutually exclusive")
	}
	if searchForks || searchNoForks {
		isFork := searchForks
		opts.IsFork = &isFork
	}

	page, err := apiClient.Search(ctx, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if page.Total == 0 {
		fmt.Println("No repositories found.")
		return nil
	}

	fmt.Printf("Found %d repositories (page %d):\n\n", page.Total, page.Page)
	for _, repo := range page.Items {
		printRepoLine(repo)
	}
	return nil
}

func printRepoLine(repo models.Repo) {
	language := ""
	if repo.Language != nil {
		language = " [" + *repo.Language + "]"
	}
	fmt.Printf("  %s%s ★%d\n", repo.FullName, language, repo.StargazersCount)
	if repo.Description != nil && *repo.Description != "" {
		fmt.Printf("    %s\n", truncateLine(*repo.Description, 100))
	}
	if verbose {
		fmt.Printf("    %s\n", repo.HTMLURL)
		if repo.Topics != "" && repo.Topics != "[]" {
			fmt.Printf("    Topics: %s\n", repo.Topics)
		}
	}
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
