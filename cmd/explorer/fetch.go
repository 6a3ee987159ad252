package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/explorer/internal/download"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [dataset-id]",
	Short: "Download and index a dataset from the catalog",
	Long: `Download a dataset archive, trying fallback mirrors if the primary
source fails, and index every position it contains. Interrupted downloads
resume from where they stopped.

Examples:
  explorer fetch --catalog catalog.json lichess-2024-01`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var fetchQuiet bool

func init() {
	fetchCmd.Flags().BoolVarP(&fetchQuiet, "quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	var progress download.ProgressFunc
	if !fetchQuiet {
		progress = download.DefaultProgressFunc
	}

	if err := client.DownloadDataset(context.Background(), args[0], progress); err != nil {
		return fmt.Errorf("fetching dataset %s: %w", args[0], err)
	}
	if !fetchQuiet {
		fmt.Println()
	}
	fmt.Printf("dataset %s downloaded and indexed (%d positions known)\n",
		args[0], client.IndexedPositions())
	return nil
}
