// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Query metrics.
	MetricQueries    = "explorer_queries_total"
	MetricCacheHits  = "explorer_cache_hits_total"
	MetricCacheMiss  = "explorer_cache_misses_total"
	MetricIngestions = "explorer_ingestions_total"

	// Download metrics.
	MetricDownloads      = "explorer_downloads_total"
	MetricDownloadRetry  = "explorer_download_retries_total"
	MetricDownloadErrors = "explorer_download_errors_total"
	MetricBytesFetched   = "explorer_bytes_fetched_total"

	// Scan metrics.
	MetricGamesScanned     = "explorer_games_scanned_total"
	MetricMalformedRecords = "explorer_malformed_records_total"
	MetricScanBytes        = "explorer_scan_bytes_total"

	// Cache store metrics.
	MetricCacheSizeBytes = "explorer_cache_size_bytes"
	MetricEvictions      = "explorer_evictions_total"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
