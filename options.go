package explorer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/explorer/internal/cache"
	"github.com/discochess/explorer/internal/cache/diskbackend"
	"github.com/discochess/explorer/internal/codec/zstdcodec"
	"github.com/discochess/explorer/internal/source"
	"github.com/discochess/explorer/internal/stats"
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

// options holds the client configuration.
type options struct {
	config     Config
	backend    cache.Backend
	sources    []source.Source
	catalog    *Catalog
	archiveDir string
	indexPath  string
	workers    int
	stats      stats.Collector
	logger     *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		config:  DefaultConfig(),
		catalog: NewCatalog(),
		workers: 2,
		stats:   stats.NewNoop(),
		logger:  zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithConfig sets the full configuration.
func WithConfig(cfg Config) Option {
	return optionFunc(func(o *options) {
		o.config = cfg
	})
}

// WithCacheDir stores cache entries as zstd-compressed files under dir,
// creating it if needed. Without this option the cache lives in memory.
func WithCacheDir(dir string) (Option, error) {
	backend, err := diskbackend.New(dir, zstdcodec.New())
	if err != nil {
		return nil, fmt.Errorf("creating cache backend: %w", err)
	}
	return optionFunc(func(o *options) {
		o.backend = backend
	}), nil
}

// WithCacheBackend sets a custom cache backend.
func WithCacheBackend(b cache.Backend) Option {
	return optionFunc(func(o *options) {
		o.backend = b
	})
}

// WithSource registers an additional archive source (e.g. GCS or S3).
// HTTP, HTTPS, and local files are always available.
func WithSource(s source.Source) Option {
	return optionFunc(func(o *options) {
		o.sources = append(o.sources, s)
	})
}

// WithCatalog sets the dataset catalog.
func WithCatalog(c *Catalog) Option {
	return optionFunc(func(o *options) {
		o.catalog = c
	})
}

// WithArchiveDir sets where downloaded archives are kept. Defaults to a
// directory under the system temp dir.
func WithArchiveDir(dir string) Option {
	return optionFunc(func(o *options) {
		o.archiveDir = dir
	})
}

// WithIndexPath persists the position index at path: loaded on New, saved
// on Close. Without it the index lives in memory only.
func WithIndexPath(path string) Option {
	return optionFunc(func(o *options) {
		o.indexPath = path
	})
}

// WithPrefetchWorkers sets the number of background prefetch workers.
// Zero disables prefetching.
func WithPrefetchWorkers(n int) Option {
	return optionFunc(func(o *options) {
		o.workers = n
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
