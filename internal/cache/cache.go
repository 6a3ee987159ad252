// Package cache implements the two-tier statistics cache: a raw tier
// holding game records per (position, archive) and an aggregated tier
// holding derived move statistics per position. Both tiers share one
// size-bounded LRU eviction policy; evicting a position removes its entries
// from both tiers together so the aggregated tier never outlives its
// provenance.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/explorer/internal/aggregate"
	"github.com/discochess/explorer/internal/record"
	"github.com/discochess/explorer/internal/stats"
)

var (
	// ErrNotFound is returned when a key has no entry in the requested tier.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrCorrupt is returned when a stored entry cannot be read back. The
	// bad entry has been dropped; the caller re-derives from source.
	ErrCorrupt = errors.New("cache: entry corrupt")
)

// Backend stores opaque entry payloads. Implementations map keys to their
// storage (memory, compressed files on disk).
type Backend interface {
	// Get returns the payload for key, ErrNotFound if absent, or ErrCorrupt
	// if the stored bytes cannot be read back.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the payload and returns the stored size in bytes (after
	// any compression).
	Put(ctx context.Context, key string, data []byte) (int64, error)

	// Delete removes the entry. Deleting a missing key is not an error.
	Delete(key string) error

	// List returns all stored entries with their stored sizes.
	List() ([]BackendEntry, error)

	// Close releases backend resources.
	Close() error
}

// BackendEntry describes one stored entry.
type BackendEntry struct {
	Key  string
	Size int64
}

const (
	rawPrefix = "raw|"
	aggPrefix = "agg|"
)

func rawKey(fenKey, archiveID string) string {
	// Archive IDs are caller-supplied and may contain the separator;
	// escape them so splitKey recovers the ID intact on reopen.
	return rawPrefix + fenKey + "|" + url.PathEscape(archiveID)
}

func aggKey(fenKey string) string {
	return aggPrefix + fenKey
}

// splitKey returns the position key and archive ID ("" for aggregated
// entries) encoded in a backend key. The archive ID is the escaped segment
// after the last separator.
func splitKey(key string) (fenKey, archiveID string, ok bool) {
	switch {
	case strings.HasPrefix(key, aggPrefix):
		return key[len(aggPrefix):], "", true
	case strings.HasPrefix(key, rawPrefix):
		rest := key[len(rawPrefix):]
		i := strings.LastIndex(rest, "|")
		if i < 0 {
			return "", "", false
		}
		id, err := url.PathUnescape(rest[i+1:])
		if err != nil {
			return "", "", false
		}
		return rest[:i], id, true
	default:
		return "", "", false
	}
}

// group tracks the eviction metadata for one position across both tiers.
type group struct {
	lastAccess time.Time
	pins       int
	entries    map[string]int64 // backend key -> stored size
}

func (g *group) size() int64 {
	var total int64
	for _, s := range g.entries {
		total += s
	}
	return total
}

// Store is the two-tier cache. Safe for concurrent use; writes for a given
// key are linearized by the store lock, so readers observe either the old
// or the fully written entry, never a mix.
type Store struct {
	mu      sync.Mutex
	backend Backend

	maxBytes int64 // 0 disables eviction
	margin   int64 // hysteresis below maxBytes

	groups map[string]*group
	total  int64

	stats  stats.Collector
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSize bounds total stored bytes. Zero or negative disables eviction.
func WithMaxSize(bytes int64) Option {
	return func(s *Store) { s.maxBytes = bytes }
}

// WithEvictionMargin sets the hysteresis margin: eviction frees down to
// maxBytes minus margin so the very next insert does not re-trigger it.
func WithEvictionMargin(bytes int64) Option {
	return func(s *Store) { s.margin = bytes }
}

// WithStats sets the stats collector.
func WithStats(collector stats.Collector) Option {
	return func(s *Store) { s.stats = collector }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over backend, picking up any entries the backend
// already holds (their last-access times reset to now).
func New(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		groups:  make(map[string]*group),
		stats:   stats.NewNoop(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	existing, err := backend.List()
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	start := s.now()
	for _, e := range existing {
		fenKey, _, ok := splitKey(e.Key)
		if !ok {
			continue
		}
		g := s.group(fenKey)
		g.lastAccess = start
		g.entries[e.Key] = e.Size
		s.total += e.Size
	}
	s.stats.SetGauge(stats.MetricCacheSizeBytes, s.total)
	return s, nil
}

// group returns the group for fenKey, creating it if needed. Caller holds mu.
func (s *Store) group(fenKey string) *group {
	g, ok := s.groups[fenKey]
	if !ok {
		g = &group{entries: make(map[string]int64)}
		s.groups[fenKey] = g
	}
	return g
}

// PutRecords stores the records scanned from one archive for one position.
// Re-putting the same (position, archive) pair replaces the entry, so
// re-ingestion never double-counts.
func (s *Store) PutRecords(ctx context.Context, fenKey, archiveID string, recs []record.Record) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	return s.put(ctx, fenKey, rawKey(fenKey, archiveID), data)
}

// GetRecords returns all stored records for the position, across every
// archive ingested for it. Returns ErrNotFound when the raw tier has no
// entry, or ErrCorrupt after dropping an unreadable one.
func (s *Store) GetRecords(ctx context.Context, fenKey string) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[fenKey]
	if !ok {
		s.stats.IncCounter(stats.MetricCacheMiss, 1)
		return nil, ErrNotFound
	}

	var out []record.Record
	found := false
	for key := range g.entries {
		if !strings.HasPrefix(key, rawPrefix) {
			continue
		}
		found = true
		data, err := s.backend.Get(ctx, key)
		if err != nil {
			return nil, s.handleReadError(fenKey, key, err)
		}
		var recs []record.Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, s.handleReadError(fenKey, key, ErrCorrupt)
		}
		out = append(out, recs...)
	}
	if !found {
		s.stats.IncCounter(stats.MetricCacheMiss, 1)
		return nil, ErrNotFound
	}

	g.lastAccess = s.now()
	s.stats.IncCounter(stats.MetricCacheHits, 1)
	return out, nil
}

// HasRecords reports whether records from archiveID are already stored for
// the position.
func (s *Store) HasRecords(fenKey, archiveID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[fenKey]
	if !ok {
		return false
	}
	_, ok = g.entries[rawKey(fenKey, archiveID)]
	return ok
}

// PutStats stores the aggregated statistics for a position, replacing any
// previous set.
func (s *Store) PutStats(ctx context.Context, fenKey string, ms []aggregate.MoveStat) error {
	data, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	return s.put(ctx, fenKey, aggKey(fenKey), data)
}

// GetStats returns the aggregated statistics for a position. A miss here
// does not imply a raw-tier miss; aggregation can be recomputed from
// records without re-downloading.
func (s *Store) GetStats(ctx context.Context, fenKey string) ([]aggregate.MoveStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[fenKey]
	if !ok {
		s.stats.IncCounter(stats.MetricCacheMiss, 1)
		return nil, ErrNotFound
	}
	key := aggKey(fenKey)
	if _, ok := g.entries[key]; !ok {
		s.stats.IncCounter(stats.MetricCacheMiss, 1)
		return nil, ErrNotFound
	}

	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, s.handleReadError(fenKey, key, err)
	}
	var ms []aggregate.MoveStat
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, s.handleReadError(fenKey, key, ErrCorrupt)
	}

	g.lastAccess = s.now()
	s.stats.IncCounter(stats.MetricCacheHits, 1)
	return ms, nil
}

// Pin prevents the position's entries from being evicted until Unpin.
// Used around in-flight aggregations.
func (s *Store) Pin(fenKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group(fenKey).pins++
}

// Unpin releases a pin taken by Pin.
func (s *Store) Unpin(fenKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[fenKey]; ok && g.pins > 0 {
		g.pins--
		if g.pins == 0 && len(g.entries) == 0 {
			delete(s.groups, fenKey)
		}
	}
}

// Size returns total stored bytes.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// EvictTo evicts least-recently-used positions until total stored bytes is
// at or below limit, skipping pinned positions.
func (s *Store) EvictTo(limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictTo(limit)
}

// Walk calls fn for every stored raw entry's (position, archive) pair.
// Used to rebuild the archive index from the raw tier.
func (s *Store) Walk(fn func(fenKey, archiveID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for fenKey, g := range s.groups {
		for key := range g.entries {
			if _, archiveID, ok := splitKey(key); ok && strings.HasPrefix(key, rawPrefix) {
				fn(fenKey, archiveID)
			}
		}
	}
}

// Close releases the backing store.
func (s *Store) Close() error {
	return s.backend.Close()
}

// put stores one entry and runs eviction if the ceiling is exceeded.
// Pins the group's metadata update and the backend write under one lock
// acquisition so concurrent writers for the same key are linearized.
func (s *Store) put(ctx context.Context, fenKey, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := s.backend.Put(ctx, key, data)
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	g := s.group(fenKey)
	if old, ok := g.entries[key]; ok {
		s.total -= old
	}
	g.entries[key] = size
	g.lastAccess = s.now()
	s.total += size
	s.stats.SetGauge(stats.MetricCacheSizeBytes, s.total)

	if s.maxBytes > 0 && s.total > s.maxBytes {
		target := s.maxBytes - s.margin
		if target < 0 {
			target = 0
		}
		return s.evictTo(target)
	}
	return nil
}

// handleReadError drops an unreadable entry and reports corruption.
// Caller holds mu.
func (s *Store) handleReadError(fenKey, key string, err error) error {
	if errors.Is(err, ErrNotFound) {
		// Backend lost the entry underneath us; forget it.
		s.dropEntry(fenKey, key)
		return ErrNotFound
	}
	if errors.Is(err, ErrCorrupt) {
		s.dropEntry(fenKey, key)
		if delErr := s.backend.Delete(key); delErr != nil {
			s.logger.Warn("deleting corrupt cache entry failed",
				zap.String("key", key), zap.Error(delErr))
		}
		s.logger.Warn("dropped corrupt cache entry", zap.String("key", key))
		return fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return fmt.Errorf("reading cache entry %s: %w", key, err)
}

// dropEntry removes one entry's metadata. Caller holds mu.
func (s *Store) dropEntry(fenKey, key string) {
	g, ok := s.groups[fenKey]
	if !ok {
		return
	}
	if size, ok := g.entries[key]; ok {
		s.total -= size
		delete(g.entries, key)
	}
	if len(g.entries) == 0 && g.pins == 0 {
		delete(s.groups, fenKey)
	}
	s.stats.SetGauge(stats.MetricCacheSizeBytes, s.total)
}

// evictTo removes least-recently-used unpinned positions, both tiers per
// position together, until total <= limit. Caller holds mu.
func (s *Store) evictTo(limit int64) error {
	if s.total <= limit {
		return nil
	}

	type candidate struct {
		fenKey string
		g      *group
	}
	candidates := make([]candidate, 0, len(s.groups))
	for fenKey, g := range s.groups {
		if g.pins == 0 {
			candidates = append(candidates, candidate{fenKey, g})
		}
	}
	// Oldest first.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].g.lastAccess.Before(candidates[j].g.lastAccess)
	})

	for _, c := range candidates {
		if s.total <= limit {
			break
		}
		for key, size := range c.g.entries {
			if err := s.backend.Delete(key); err != nil {
				return fmt.Errorf("evicting %s: %w", key, err)
			}
			s.total -= size
		}
		delete(s.groups, c.fenKey)
		s.stats.IncCounter(stats.MetricEvictions, 1)
		s.logger.Debug("evicted position", zap.String("key", c.fenKey))
	}

	s.stats.SetGauge(stats.MetricCacheSizeBytes, s.total)
	if s.total > limit {
		s.logger.Warn("eviction target unreachable, remaining entries pinned",
			zap.Int64("total", s.total), zap.Int64("limit", limit))
	}
	return nil
}
