// Package memoryexplorerfx provides an fx module for an in-memory explorer client.
// Useful for testing.
package memoryexplorerfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/explorer"
	"github.com/discochess/explorer/internal/cache/membackend"
	"github.com/discochess/explorer/internal/stats"
	"github.com/discochess/explorer/internal/stats/logger"
)

// Module provides an in-memory explorer client for testing.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("memoryexplorer",
	fx.Provide(
		newStatsCollector,
		newBackend,
		newClient,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("explorer.stats"))
}

func newBackend() *membackend.Backend {
	return membackend.New()
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Backend   *membackend.Backend
	Lifecycle fx.Lifecycle
}

// Result holds the provided client and backend.
type Result struct {
	fx.Out

	Client  *explorer.Client
	Backend *membackend.Backend // Exposed for test setup
}

func newClient(p Params) (Result, error) {
	client, err := explorer.New(
		explorer.WithCacheBackend(p.Backend),
		explorer.WithStats(p.Collector),
		explorer.WithLogger(p.Logger.Named("explorer")),
	)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return Result{
		Client:  client,
		Backend: p.Backend,
	}, nil
}
