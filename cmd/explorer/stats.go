package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/explorer/internal/download"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	fmt.Printf("cache size:        %s\n", download.FormatBytes(client.CacheSize()))
	fmt.Printf("indexed positions: %d\n", client.IndexedPositions())
	return nil
}
