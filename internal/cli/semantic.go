package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var semanticLimit int

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Search readme content by meaning",
	Long: `Search enriched readmes with vector similarity. The query is embedded
and matched against indexed readme content, so results cover what a
repository is about rather than just what it is called.

Examples:
  starmirror semantic "terminal ui framework"
  starmirror semantic "distributed task queue" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSemantic,
}

func init() {
	semanticCmd.Flags().IntVarP(&semanticLimit, "limit", "n", 10, "max results")
	rootCmd.AddCommand(semanticCmd)
}

func runSemantic(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	hits, err := apiClient.SemanticSearch(ctx, args[0], semanticLimit)
	if err != nil {
		return fmt.Errorf("semantic search: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No results found. Has 'starmirror enrich' run yet?")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(hits))
	for i, hit := range hits {
		language := ""
		if hit.Repo.Language != nil {
			language = " [" + *hit.Repo.Language + "]"
		}
		fmt.Printf("%d. %s%s ★%d (score %.3f)\n", i+1, hit.Repo.FullName, language, hit.Repo.StargazersCount, hit.Score)
		if hit.Snippet != "" {
			fmt.Printf("   %s\n", truncateLine(hit.Snippet, 160))
		}
		if verbose {
			fmt.Printf("   %s\n", hit.Repo.HTMLURL)
		}
		fmt.Println()
	}
	return nil
}
