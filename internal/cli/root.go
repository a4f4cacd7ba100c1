// Package cli provides the command-line interface for starmirror.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukaswerner/starmirror/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "starmirror",
	Short: "Mirror and search your starred GitHub repositories",
	Long: `Starmirror keeps a local, queryable mirror of the repositories you
starred on GitHub and enriches it with readme embeddings for semantic
search.

All commands talk to a running starmirror server (see starmirror-server).`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server address (default $STARMIRROR_SERVER_URL or http://localhost:8184)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
