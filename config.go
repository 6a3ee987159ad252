package explorer

import (
	"time"

	"github.com/discochess/explorer/internal/aggregate"
)

// CacheConfig bounds the two-tier statistics cache.
type CacheConfig struct {
	// MaxSizeBytes caps total stored bytes across both tiers. Zero
	// disables eviction.
	MaxSizeBytes int64

	// EvictionMargin is the hysteresis below MaxSizeBytes that eviction
	// frees down to, so one insert does not re-trigger it.
	EvictionMargin int64
}

// NetworkConfig controls archive fetching.
type NetworkConfig struct {
	// TimeoutSeconds bounds a single fetch attempt. Zero means no
	// per-attempt deadline beyond the caller's context.
	TimeoutSeconds int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BandwidthLimitBytesPerSec caps the aggregate download rate. Zero
	// means unlimited.
	BandwidthLimitBytesPerSec int64
}

// Timeout returns the per-attempt deadline as a duration.
func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// DataConfig controls scanning and aggregation.
type DataConfig struct {
	// StreamingThreshold stops an archive scan once this many matching
	// games have been seen. Zero or negative scans whole archives.
	StreamingThreshold int

	// ConfidenceThresholds sets the game counts at which confidence
	// upgrades from low to medium and medium to high.
	ConfidenceThresholds aggregate.Thresholds
}

// Config is the full client configuration. Construct with DefaultConfig and
// override fields as needed.
type Config struct {
	Cache   CacheConfig
	Network NetworkConfig
	Data    DataConfig
}

// DefaultConfig returns the standard configuration: a 512 MiB cache with a
// 32 MiB eviction margin, three retries, unlimited bandwidth, scans capped
// at 200 matching games, and confidence boundaries at 10 and 50 games.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			MaxSizeBytes:   512 << 20,
			EvictionMargin: 32 << 20,
		},
		Network: NetworkConfig{
			TimeoutSeconds: 60,
			MaxRetries:     3,
		},
		Data: DataConfig{
			StreamingThreshold:   200,
			ConfidenceThresholds: aggregate.DefaultThresholds(),
		},
	}
}
