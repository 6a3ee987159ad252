// Package diskexplorerfx provides an fx module for a disk-backed explorer client.
package diskexplorerfx

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/explorer"
	"github.com/discochess/explorer/internal/stats"
	"github.com/discochess/explorer/internal/stats/prometheus"
)

// Config holds configuration for the disk-backed explorer client.
type Config struct {
	// DataDir is the directory holding the cache, downloaded archives,
	// and the position index.
	DataDir string

	// Catalog lists the datasets the client may download. Optional.
	Catalog *explorer.Catalog

	// Explorer overrides the client configuration. Zero value uses
	// explorer.DefaultConfig.
	Explorer explorer.Config
}

// Module provides a disk-backed explorer client with Prometheus metrics.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("diskexplorer",
	fx.Provide(
		newStatsCollector,
		newClient,
	),
)

func newStatsCollector() stats.Collector {
	return prometheus.New(nil)
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
	Lifecycle fx.Lifecycle
}

// Result holds the provided client.
type Result struct {
	fx.Out

	Client *explorer.Client
}

func newClient(p Params) (Result, error) {
	cfg := p.Config.Explorer
	if cfg == (explorer.Config{}) {
		cfg = explorer.DefaultConfig()
	}

	cacheDir, err := explorer.WithCacheDir(filepath.Join(p.Config.DataDir, "cache"))
	if err != nil {
		return Result{}, err
	}

	opts := []explorer.Option{
		explorer.WithConfig(cfg),
		cacheDir,
		explorer.WithArchiveDir(filepath.Join(p.Config.DataDir, "archives")),
		explorer.WithIndexPath(filepath.Join(p.Config.DataDir, "index.json")),
		explorer.WithStats(p.Collector),
		explorer.WithLogger(p.Logger.Named("explorer")),
	}
	if p.Config.Catalog != nil {
		opts = append(opts, explorer.WithCatalog(p.Config.Catalog))
	}

	client, err := explorer.New(opts...)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Result{Client: client}, nil
}
