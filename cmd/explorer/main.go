// Package main provides the explorer CLI tool for downloading chess game
// archives and querying aggregated position statistics.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
