package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	explorer "github.com/discochess/explorer"
)

var (
	// Global flags.
	dataDir     string
	catalogPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "explorer",
	Short: "Aggregated move statistics for chess positions from engine game archives",
	Long: `Explorer downloads engine game archives, indexes the positions they
contain, and answers position queries with aggregated per-move statistics:
win rates, decisiveness, and sample confidence.

Examples:
  # Download a dataset from the catalog
  explorer fetch lichess-2024-01

  # Query the starting position
  explorer query "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

  # Shrink the cache to 100 MB
  explorer evict --to-bytes 104857600`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./explorer-data", "directory for cache, archives, and index")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "JSON file listing downloadable datasets")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// newClient assembles a client from the global flags.
func newClient() (*explorer.Client, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	catalog := explorer.NewCatalog()
	if catalogPath != "" {
		loaded, err := loadCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	cacheOpt, err := explorer.WithCacheDir(filepath.Join(dataDir, "cache"))
	if err != nil {
		return nil, err
	}

	opts := []explorer.Option{
		cacheOpt,
		explorer.WithCatalog(catalog),
		explorer.WithArchiveDir(filepath.Join(dataDir, "archives")),
		explorer.WithIndexPath(filepath.Join(dataDir, "index.json")),
	}

	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		opts = append(opts, explorer.WithLogger(logger))
	}

	return explorer.New(opts...)
}

// loadCatalog reads a JSON array of dataset descriptors.
func loadCatalog(path string) (*explorer.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var datasets []explorer.Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return explorer.NewCatalog(datasets...), nil
}
