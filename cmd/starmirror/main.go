// Package main provides the starmirror CLI.
package main

import (
	"fmt"
	"os"

	"github.com/lukaswerner/starmirror/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
