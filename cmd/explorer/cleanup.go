package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Verify local archives and remove corrupt ones",
	Long: `Verify every downloaded archive against its catalog content hash and
remove files that fail, so the next query re-fetches them from source.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	removed, err := client.Cleanup(context.Background())
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	if len(removed) == 0 {
		fmt.Println("all archives verified")
		return nil
	}
	for _, id := range removed {
		fmt.Printf("removed corrupt archive %s\n", id)
	}
	return nil
}
