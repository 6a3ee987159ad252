// Package download fetches archive payloads to local files with resume
// support, bandwidth throttling, retry with backoff, and content hash
// verification.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/discochess/explorer/internal/source"
	"github.com/discochess/explorer/internal/stats"
)

var (
	// ErrTransient indicates a retryable failure; the partial file is kept
	// for a later resume.
	ErrTransient = errors.New("download: transient failure")

	// ErrPermanent indicates the archive cannot be fetched (gone or never
	// published). Callers must not retry.
	ErrPermanent = errors.New("download: permanent failure")

	// ErrCorrupt indicates the downloaded content failed hash verification.
	// The partial file has been discarded.
	ErrCorrupt = errors.New("download: content hash mismatch")
)

// State describes how much of an archive is present locally.
type State int

const (
	// StateAbsent means no local bytes exist for the archive.
	StateAbsent State = iota
	// StatePartial means a prefix of the archive is on disk; Offset holds
	// the byte count.
	StatePartial
	// StateComplete means the archive is fully downloaded and verified.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePartial:
		return "partial"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry describes one archive to fetch and its local state. Fetch updates
// State and Offset as it progresses.
type Entry struct {
	// ID is the stable archive identifier.
	ID string

	// URI locates the archive at its source.
	URI string

	// Size is the expected total size in bytes, or 0 if unknown.
	Size int64

	// ContentHash is the expected hex-encoded SHA-256 of the full payload.
	// Empty skips verification.
	ContentHash string

	// State is the local download state.
	State State

	// Offset is the number of bytes present locally when State is
	// StatePartial.
	Offset int64
}

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
	copyBufferSize    = 32 * 1024
)

// Downloader fetches archives through a source registry.
type Downloader struct {
	sources    *source.Registry
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	stats      stats.Collector
	logger     *zap.Logger
	progress   ProgressFunc
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithBandwidthLimit caps the aggregate download rate in bytes per second.
// Zero or negative means unlimited.
func WithBandwidthLimit(bytesPerSec int64) Option {
	return func(d *Downloader) {
		if bytesPerSec <= 0 {
			d.limiter = nil
			return
		}
		burst := int(bytesPerSec)
		if burst < copyBufferSize {
			burst = copyBufferSize
		}
		d.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(d *Downloader) {
		d.maxRetries = n
	}
}

// WithRetryBackoff sets the initial backoff; it doubles per retry.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(d *Downloader) {
		d.backoff = backoff
	}
}

// WithStats sets the stats collector.
func WithStats(collector stats.Collector) Option {
	return func(d *Downloader) {
		d.stats = collector
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithProgress sets a progress callback invoked during transfers.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// New creates a Downloader fetching through the given source registry.
func New(sources *source.Registry, opts ...Option) *Downloader {
	d := &Downloader{
		sources:    sources,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		stats:      stats.NewNoop(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads the archive described by entry to destPath, resuming from
// any partial file already present. On success the entry is marked complete.
// A hash mismatch discards the local file, resets the entry to absent, and
// returns ErrCorrupt.
func (d *Downloader) Fetch(ctx context.Context, entry *Entry, destPath string) error {
	src, err := d.sources.For(entry.URI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	var lastErr error
	backoff := d.backoff

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			d.stats.IncCounter(stats.MetricDownloadRetry, 1)
			d.logger.Debug("retrying download",
				zap.String("archive", entry.ID),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := d.fetchOnce(ctx, src, entry, destPath)
		if err == nil {
			return d.verify(entry, destPath)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, source.ErrUnavailable) {
			d.stats.IncCounter(stats.MetricDownloadErrors, 1)
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		lastErr = err
	}

	d.stats.IncCounter(stats.MetricDownloadErrors, 1)
	return fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, src source.Source, entry *Entry, destPath string) error {
	// Resume from whatever is on disk, not from the recorded offset; the
	// file is the source of truth after a crash.
	var offset int64
	if info, err := os.Stat(destPath); err == nil {
		offset = info.Size()
	}
	if entry.Size > 0 && offset >= entry.Size {
		// All bytes already on disk; verification decides from here.
		entry.Offset = offset
		return nil
	}

	body, totalSize, err := src.Open(ctx, entry.URI, offset)
	if err != nil {
		if offset > 0 && errors.Is(err, source.ErrResumeUnsupported) {
			// Restart from scratch.
			if rmErr := os.Remove(destPath); rmErr != nil {
				return fmt.Errorf("removing partial file: %w", rmErr)
			}
			entry.State = StateAbsent
			entry.Offset = 0
			body, totalSize, err = src.Open(ctx, entry.URI, 0)
			if err != nil {
				return err
			}
			offset = 0
		} else {
			return err
		}
	}
	defer body.Close()

	if totalSize > 0 {
		entry.Size = totalSize
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer file.Close()

	buf := make([]byte, copyBufferSize)
	fetched := offset

	for {
		select {
		case <-ctx.Done():
			entry.State = StatePartial
			entry.Offset = fetched
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					entry.State = StatePartial
					entry.Offset = fetched
					return err
				}
			}
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				entry.State = StatePartial
				entry.Offset = fetched
				return fmt.Errorf("writing destination: %w", writeErr)
			}
			fetched += int64(n)
			d.stats.IncCounter(stats.MetricBytesFetched, int64(n))

			if d.progress != nil {
				d.progress(Progress{
					ArchiveID:    entry.ID,
					BytesFetched: fetched,
					BytesTotal:   entry.Size,
				})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			entry.State = StatePartial
			entry.Offset = fetched
			return fmt.Errorf("reading archive stream: %w", readErr)
		}
	}

	if entry.Size > 0 && fetched < entry.Size {
		entry.State = StatePartial
		entry.Offset = fetched
		return fmt.Errorf("short read: got %d of %d bytes", fetched, entry.Size)
	}

	entry.Offset = fetched
	return nil
}

// verify checks size and content hash of the completed file.
func (d *Downloader) verify(entry *Entry, destPath string) error {
	if entry.ContentHash != "" {
		sum, err := HashFile(destPath)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", destPath, err)
		}
		if sum != strings.ToLower(entry.ContentHash) {
			os.Remove(destPath)
			entry.State = StateAbsent
			entry.Offset = 0
			d.stats.IncCounter(stats.MetricDownloadErrors, 1)
			return fmt.Errorf("%w: archive %s: got %s, want %s",
				ErrCorrupt, entry.ID, sum, entry.ContentHash)
		}
	}

	entry.State = StateComplete
	d.stats.IncCounter(stats.MetricDownloads, 1)
	d.logger.Debug("download complete",
		zap.String("archive", entry.ID),
		zap.Int64("bytes", entry.Offset))
	return nil
}

// HashFile returns the hex-encoded SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
