package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/explorer/internal/download"
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Shrink the statistics cache to a byte limit",
	Long: `Evict least-recently-used positions from the statistics cache until
total stored bytes is at or below the limit.

Examples:
  explorer evict --to-bytes 104857600`,
	RunE: runEvict,
}

var evictToBytes int64

func init() {
	evictCmd.Flags().Int64Var(&evictToBytes, "to-bytes", 0, "target cache size in bytes")
	evictCmd.MarkFlagRequired("to-bytes")
	rootCmd.AddCommand(evictCmd)
}

func runEvict(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	before := client.CacheSize()
	if err := client.EvictTo(evictToBytes); err != nil {
		return fmt.Errorf("evicting: %w", err)
	}
	after := client.CacheSize()

	fmt.Printf("cache: %s -> %s (freed %s)\n",
		download.FormatBytes(before), download.FormatBytes(after), download.FormatBytes(before-after))
	return nil
}
