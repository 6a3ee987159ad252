// Package explorer answers position queries against remote chess game
// archives: given a position, what happened when strong engines played from
// here, across how many games, and how reliable is that sample.
//
// Example usage:
//
//	client, err := explorer.New(
//	    explorer.WithCatalog(catalog),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	stats, err := client.GetStatistics(ctx,
//	    "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "", explorer.SideWhite)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, move := range stats.Moves {
//	    fmt.Printf("%s: %.1f%% over %d games\n",
//	        move.Move, 100*move.PerformanceScore, move.TotalGames)
//	}
package explorer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/discochess/explorer/internal/aggregate"
	"github.com/discochess/explorer/internal/cache"
	"github.com/discochess/explorer/internal/cache/membackend"
	"github.com/discochess/explorer/internal/codec"
	"github.com/discochess/explorer/internal/codec/gzipcodec"
	"github.com/discochess/explorer/internal/codec/noopcodec"
	"github.com/discochess/explorer/internal/codec/zstdcodec"
	"github.com/discochess/explorer/internal/download"
	"github.com/discochess/explorer/internal/fen"
	"github.com/discochess/explorer/internal/index"
	"github.com/discochess/explorer/internal/record"
	"github.com/discochess/explorer/internal/scan"
	"github.com/discochess/explorer/internal/source"
	"github.com/discochess/explorer/internal/source/filesource"
	"github.com/discochess/explorer/internal/source/httpsource"
	"github.com/discochess/explorer/internal/stats"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrMalformedFEN indicates the query position could not be parsed.
	ErrMalformedFEN = errors.New("explorer: malformed FEN")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("explorer: client closed")
)

const (
	memoSize         = 512
	ingestParallel   = 4
	prefetchQueueLen = 64
)

// queryResult is the unprojected outcome of resolving one position key.
type queryResult struct {
	moves  []MoveStat
	failed []string
}

// archiveState tracks one archive's download state. The mutex serializes
// downloads of the same archive triggered by different queries.
type archiveState struct {
	mu    sync.Mutex
	entry download.Entry
}

// Client resolves position statistics through a two-tier cache, an archive
// index, and resumable archive downloads. Safe for concurrent use.
type Client struct {
	cfg        Config
	cache      *cache.Store
	index      *index.Index
	indexPath  string
	sources    *source.Registry
	codecs     *codec.Registry
	formats    *record.Registry
	scanner    *scan.Processor
	downloader *download.Downloader
	catalog    *Catalog
	archiveDir string

	mu       sync.Mutex
	archives map[string]*archiveState

	flight singleflight.Group
	memo   *lru.Cache[string, queryResult]

	prefetchCh     chan string
	prefetchCancel context.CancelFunc
	prefetchWG     sync.WaitGroup

	stats  stats.Collector
	logger *zap.Logger
	closed atomic.Bool
}

// New creates a Client with the given options.
// If no options are provided, sensible defaults are used: an in-memory
// cache, HTTP/HTTPS/file sources, and an empty catalog.
func New(opts ...Option) (*Client, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	backend := cfg.backend
	if backend == nil {
		backend = membackend.New()
	}

	store, err := cache.New(backend,
		cache.WithMaxSize(cfg.config.Cache.MaxSizeBytes),
		cache.WithEvictionMargin(cfg.config.Cache.EvictionMargin),
		cache.WithStats(cfg.stats),
		cache.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	codecs := codec.NewRegistry(noopcodec.New())
	codecs.Register(zstdcodec.New())
	codecs.Register(gzipcodec.New())

	formats := record.NewRegistry(record.NewPlainFormat(), record.NewPGNFormat())

	sources := source.NewRegistry(filesource.New())
	sources.Register("http", httpsource.New("http"))
	sources.Register("https", httpsource.New("https"))
	for _, s := range cfg.sources {
		sources.Register(s.Scheme(), s)
	}

	archiveDir := cfg.archiveDir
	if archiveDir == "" {
		archiveDir = filepath.Join(os.TempDir(), "explorer-archives")
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	ix := index.New()
	if cfg.indexPath != "" {
		if err := ix.Load(cfg.indexPath); err != nil {
			return nil, fmt.Errorf("loading index: %w", err)
		}
	}

	memo, err := lru.New[string, queryResult](memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}

	c := &Client{
		cfg:        cfg.config,
		cache:      store,
		index:      ix,
		indexPath:  cfg.indexPath,
		sources:    sources,
		codecs:     codecs,
		formats:    formats,
		scanner:    scan.New(codecs, cfg.stats, cfg.logger),
		catalog:    cfg.catalog,
		archiveDir: archiveDir,
		archives:   make(map[string]*archiveState),
		memo:       memo,
		stats:      cfg.stats,
		logger:     cfg.logger,
	}
	c.downloader = download.New(sources,
		download.WithMaxRetries(cfg.config.Network.MaxRetries),
		download.WithBandwidthLimit(cfg.config.Network.BandwidthLimitBytesPerSec),
		download.WithStats(cfg.stats),
		download.WithLogger(cfg.logger),
	)

	if cfg.workers > 0 {
		prefetchCtx, cancel := context.WithCancel(context.Background())
		c.prefetchCancel = cancel
		c.prefetchCh = make(chan string, prefetchQueueLen)
		for i := 0; i < cfg.workers; i++ {
			c.prefetchWG.Add(1)
			go c.prefetchWorker(prefetchCtx)
		}
	}

	c.logger.Debug("client initialized",
		zap.String("archiveDir", archiveDir),
		zap.Int64("cacheMaxBytes", cfg.config.Cache.MaxSizeBytes),
	)
	return c, nil
}

// GetStatistics returns aggregated move statistics for the position.
// networkFilter restricts the result to one source tag; empty keeps all.
// side selects the perspective scores are surfaced from; empty defaults to
// the side to move. Returns ErrMalformedFEN for an unparsable position.
func (c *Client) GetStatistics(ctx context.Context, fenStr, networkFilter string, side Side) (*Statistics, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	key, err := fen.Normalize(fenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFEN, err)
	}

	c.stats.IncCounter(stats.MetricQueries, 1)

	res, err := c.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.project(key, res, networkFilter, side), nil
}

// EvictTo shrinks the cache to at most limit bytes, least recently used
// positions first.
func (c *Client) EvictTo(limit int64) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.memo.Purge()
	return c.cache.EvictTo(limit)
}

// CacheSize returns total bytes stored across both cache tiers.
func (c *Client) CacheSize() int64 {
	return c.cache.Size()
}

// IndexedPositions returns the number of position keys in the archive index.
func (c *Client) IndexedPositions() int {
	return c.index.Len()
}

// Prefetch enqueues a position for background ingestion. The queue is
// bounded; when full the request is dropped.
func (c *Client) Prefetch(fenStr string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.prefetchCh == nil {
		return nil
	}
	key, err := fen.Normalize(fenStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFEN, err)
	}
	select {
	case c.prefetchCh <- key:
	default:
		c.logger.Debug("prefetch queue full, dropping", zap.String("key", key))
	}
	return nil
}

// DownloadDataset fetches a catalog dataset, trying the primary URI then
// each fallback in order, and indexes every position it contains. progress
// may be nil.
func (c *Client) DownloadDataset(ctx context.Context, id string, progress download.ProgressFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}

	ds, err := c.catalog.Get(id)
	if err != nil {
		return err
	}

	st := c.archive(id, ds)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.entry.State != download.StateComplete {
		if err := c.fetchWithFallbacks(ctx, st, ds, progress); err != nil {
			return err
		}
	}

	if err := c.indexArchive(ctx, id, ds); err != nil {
		return fmt.Errorf("indexing dataset %s: %w", id, err)
	}
	c.memo.Purge()

	if c.indexPath != "" {
		if err := c.index.Save(c.indexPath); err != nil {
			return fmt.Errorf("saving index: %w", err)
		}
	}
	return nil
}

// RebuildIndex reconstructs the position index from the raw record tier,
// the recovery path for index corruption.
func (c *Client) RebuildIndex() error {
	if c.closed.Load() {
		return ErrClosed
	}
	err := c.index.Rebuild(func(emit func(key, archiveID string)) error {
		c.cache.Walk(emit)
		return nil
	})
	if err != nil {
		return err
	}
	if c.indexPath != "" {
		return c.index.Save(c.indexPath)
	}
	return nil
}

// Cleanup verifies local archive files against their catalog hashes and
// removes any that fail, resetting their download state so the next query
// re-fetches them. Returns the IDs of removed archives.
func (c *Client) Cleanup(ctx context.Context) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	var removed []string
	for _, id := range c.catalog.IDs() {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		ds, err := c.catalog.Get(id)
		if err != nil || ds.ContentHash == "" {
			continue
		}
		path := c.archivePath(id, ds)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		sum, err := download.HashFile(path)
		if err != nil || sum != ds.ContentHash {
			st := c.archive(id, ds)
			st.mu.Lock()
			os.Remove(path)
			st.entry.State = download.StateAbsent
			st.entry.Offset = 0
			st.mu.Unlock()
			removed = append(removed, id)
			c.logger.Warn("removed corrupt archive", zap.String("archive", id))
		}
	}
	return removed, nil
}

// Close releases all resources associated with the client.
// After Close, the client should not be used.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if c.prefetchCancel != nil {
		c.prefetchCancel()
		c.prefetchWG.Wait()
	}

	var first error
	if c.indexPath != "" {
		if err := c.index.Save(c.indexPath); err != nil {
			first = fmt.Errorf("saving index: %w", err)
		}
	}
	if err := c.cache.Close(); err != nil && first == nil {
		first = fmt.Errorf("closing cache: %w", err)
	}
	if err := c.sources.Close(); err != nil && first == nil {
		first = fmt.Errorf("closing sources: %w", err)
	}
	return first
}

// resolve returns the unprojected statistics for a normalized key,
// coalescing concurrent callers onto one in-flight pipeline per key.
func (c *Client) resolve(ctx context.Context, key string) (queryResult, error) {
	if res, ok := c.memo.Get(key); ok {
		c.stats.IncCounter(stats.MetricCacheHits, 1)
		return res, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		res, err := c.lookupOrIngest(ctx, key)
		if err != nil {
			return queryResult{}, err
		}
		// A result with failed archives is incomplete; leave it out of the
		// memo so the next query re-attempts those archives.
		if len(res.failed) == 0 {
			c.memo.Add(key, res)
		}
		return res, nil
	})
	if err != nil {
		return queryResult{}, err
	}
	return v.(queryResult), nil
}

// lookupOrIngest runs the per-key state machine: cache lookup, index
// lookup, then download/scan/aggregate/write-back for archives not yet
// ingested for this key.
func (c *Client) lookupOrIngest(ctx context.Context, key string) (queryResult, error) {
	ids := c.index.Lookup(key)

	var missing []string
	for _, id := range ids {
		if !c.cache.HasRecords(key, id) {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		if ms, err := c.getStatsRetry(ctx, key); err == nil {
			return queryResult{moves: ms}, nil
		} else if !recoverable(err) {
			return queryResult{}, err
		}

		// Aggregated miss with raw present: recompute without network.
		recs, err := c.cache.GetRecords(ctx, key)
		if err == nil {
			ms := aggregate.Aggregate(recs, c.cfg.Data.ConfidenceThresholds)
			c.writeBack(ctx, key, ms)
			return queryResult{moves: ms}, nil
		}
		if !recoverable(err) {
			return queryResult{}, err
		}
		if len(ids) == 0 {
			// No archive knows this position: empty result, no network.
			return queryResult{}, nil
		}
		// Both tiers evicted or corrupt; re-derive from source.
		missing = ids
	}

	c.cache.Pin(key)
	defer c.cache.Unpin(key)

	failed, err := c.ingest(ctx, key, missing)
	if err != nil {
		return queryResult{}, err
	}

	recs, err := c.cache.GetRecords(ctx, key)
	if err != nil {
		if recoverable(err) {
			// Every archive failed; nothing ingested for the key.
			return queryResult{failed: failed}, nil
		}
		return queryResult{}, err
	}

	ms := aggregate.Aggregate(recs, c.cfg.Data.ConfidenceThresholds)
	c.writeBack(ctx, key, ms)
	c.stats.IncCounter(stats.MetricIngestions, 1)
	return queryResult{moves: ms, failed: failed}, nil
}

// ingest downloads and scans the given archives for key in parallel,
// returning the IDs that failed. Archive failures are per-archive outcomes,
// not fatal; only context cancellation aborts the whole ingestion.
func (c *Client) ingest(ctx context.Context, key string, ids []string) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestParallel)

	var mu sync.Mutex
	var failed []string

	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := c.ingestArchive(gctx, key, id)
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Warn("archive ingestion failed",
				zap.String("archive", id),
				zap.String("key", key),
				zap.Error(err))
			mu.Lock()
			failed = append(failed, id)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(failed)
	return failed, nil
}

// ingestArchive ensures the archive is downloaded, scans it for key, and
// writes the matching records to the raw tier. An empty record set is
// still written so the archive is marked as ingested for the key.
func (c *Client) ingestArchive(ctx context.Context, key, id string) error {
	ds, err := c.catalog.Get(id)
	if err != nil {
		return err
	}

	st := c.archive(id, ds)
	st.mu.Lock()
	if st.entry.State != download.StateComplete {
		err = c.fetchWithFallbacks(ctx, st, ds, nil)
	}
	st.mu.Unlock()
	if err != nil {
		return err
	}

	path := c.archivePath(id, ds)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", id, err)
	}
	defer f.Close()

	format, err := c.format(ds)
	if err != nil {
		return err
	}

	res, err := c.scanner.Scan(ctx, f, filepath.Base(path), format, key, c.cfg.Data.StreamingThreshold)
	if err != nil {
		return err
	}

	for i := range res.Records {
		if res.Records[i].SourceTag == "" {
			res.Records[i].SourceTag = ds.SourceTag
		}
	}
	return c.cache.PutRecords(ctx, key, id, res.Records)
}

// fetchWithFallbacks downloads the archive from its primary URI, then each
// fallback mirror in order. Caller holds the archive lock.
func (c *Client) fetchWithFallbacks(ctx context.Context, st *archiveState, ds Dataset, progress download.ProgressFunc) error {
	dl := c.downloader
	if progress != nil {
		dl = download.New(c.sources,
			download.WithMaxRetries(c.cfg.Network.MaxRetries),
			download.WithBandwidthLimit(c.cfg.Network.BandwidthLimitBytesPerSec),
			download.WithStats(c.stats),
			download.WithLogger(c.logger),
			download.WithProgress(progress),
		)
	}

	path := c.archivePath(ds.ID, ds)
	uris := append([]string{ds.URI}, ds.Fallbacks...)

	var lastErr error
	for _, uri := range uris {
		fctx := ctx
		var cancel context.CancelFunc
		if timeout := c.cfg.Network.Timeout(); timeout > 0 {
			fctx, cancel = context.WithTimeout(ctx, timeout)
		}

		st.entry.URI = uri
		err := dl.Fetch(fctx, &st.entry, path)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		lastErr = err
		c.logger.Warn("archive fetch failed, trying next mirror",
			zap.String("archive", ds.ID),
			zap.String("uri", uri),
			zap.Error(err))
	}
	return lastErr
}

// indexArchive streams every record of a downloaded archive and registers
// its positions in the index. Caller holds the archive lock.
func (c *Client) indexArchive(ctx context.Context, id string, ds Dataset) error {
	path := c.archivePath(id, ds)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", id, err)
	}
	defer f.Close()

	format, err := c.format(ds)
	if err != nil {
		return err
	}

	return c.scanner.Each(ctx, f, filepath.Base(path), format, func(rec record.Record) error {
		c.index.Register(rec.FEN, id)
		return nil
	})
}

// getStatsRetry reads the aggregated tier, retrying once so a lookup racing
// an eviction pass sees a clean outcome.
func (c *Client) getStatsRetry(ctx context.Context, key string) ([]MoveStat, error) {
	ms, err := c.cache.GetStats(ctx, key)
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrCorrupt) {
		ms, err = c.cache.GetStats(ctx, key)
	}
	return ms, err
}

// writeBack stores aggregated stats; failures degrade to a log line since
// the result is still served from memory.
func (c *Client) writeBack(ctx context.Context, key string, ms []MoveStat) {
	if err := c.cache.PutStats(ctx, key, ms); err != nil {
		c.logger.Warn("aggregated write-back failed",
			zap.String("key", key), zap.Error(err))
	}
}

// project applies the network filter and side perspective to an
// unprojected result.
func (c *Client) project(key string, res queryResult, networkFilter string, side Side) *Statistics {
	out := &Statistics{
		FEN:            key,
		FailedArchives: res.failed,
	}

	for _, ms := range res.moves {
		if networkFilter != "" && ms.SourceTag != networkFilter {
			continue
		}
		if side != "" && string(side) != ms.Side {
			ms = flipStat(ms)
		}
		out.Moves = append(out.Moves, ms)
	}

	out.PositionConfidence = c.cfg.Data.ConfidenceThresholds.Grade(out.TotalGames())
	return out
}

func (c *Client) prefetchWorker(ctx context.Context) {
	defer c.prefetchWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-c.prefetchCh:
			if _, err := c.resolve(ctx, key); err != nil {
				c.logger.Debug("prefetch failed",
					zap.String("key", key), zap.Error(err))
			}
		}
	}
}

// archive returns the download state for an archive ID, creating it from
// the dataset descriptor on first use.
func (c *Client) archive(id string, ds Dataset) *archiveState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.archives[id]
	if !ok {
		st = &archiveState{
			entry: download.Entry{
				ID:          id,
				URI:         ds.URI,
				Size:        ds.Size,
				ContentHash: ds.ContentHash,
			},
		}
		// A file of the expected size from a previous run counts as
		// complete; Cleanup verifies hashes and resets bad ones.
		if info, err := os.Stat(c.archivePath(id, ds)); err == nil && ds.Size > 0 && info.Size() == ds.Size {
			st.entry.State = download.StateComplete
			st.entry.Offset = info.Size()
		}
		c.archives[id] = st
	}
	return st
}

// archivePath returns the local file for an archive, preserving the URI's
// extension so the codec registry picks the right decompressor.
func (c *Client) archivePath(id string, ds Dataset) string {
	return filepath.Join(c.archiveDir, id+archiveExt(ds.URI))
}

// format returns the record parser for a dataset, defaulting to the plain
// pipe-delimited format.
func (c *Client) format(ds Dataset) (record.Format, error) {
	name := ds.Format
	if name == "" {
		name = "plain"
	}
	return c.formats.Get(name)
}

// archiveExt returns the compression-relevant extension chain of a URI
// path, e.g. ".pgn.zst".
func archiveExt(uri string) string {
	base := filepath.Base(uri)
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[i:]
	}
	return ""
}

// recoverable reports whether a cache read error allows re-derivation
// instead of failing the query.
func recoverable(err error) bool {
	return errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrCorrupt)
}
