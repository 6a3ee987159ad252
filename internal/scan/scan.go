// Package scan implements streaming extraction of game records from archive
// payloads. Archives are orders of magnitude larger than the games relevant
// to one query, so the processor decompresses and parses one game at a time
// and stops as soon as it has seen enough matching games, leaving the rest of
// the stream unread.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/discochess/explorer/internal/codec"
	"github.com/discochess/explorer/internal/record"
	"github.com/discochess/explorer/internal/stats"
)

// Processor scans archive streams for records matching a position key.
type Processor struct {
	codecs *codec.Registry
	stats  stats.Collector
	logger *zap.Logger
}

// New creates a Processor. The codec registry picks the decompressor from
// the archive name; collector and logger may be nil.
func New(codecs *codec.Registry, collector stats.Collector, logger *zap.Logger) *Processor {
	if collector == nil {
		collector = stats.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		codecs: codecs,
		stats:  collector,
		logger: logger,
	}
}

// Result summarizes one scan.
type Result struct {
	// Records holds the per-ply observations matching the target key.
	Records []record.Record

	// GamesScanned counts all games parsed, matching or not.
	GamesScanned int64

	// MatchingGames counts games that reached the target position.
	MatchingGames int64

	// Malformed counts skipped unparsable games.
	Malformed int64

	// BytesRead is the number of compressed bytes consumed from the stream.
	BytesRead int64

	// Truncated reports whether the scan stopped at the threshold before
	// exhausting the stream.
	Truncated bool
}

// Scan reads games from r, which holds an archive named name (the extension
// selects the decompressor), using format to parse individual games. It
// collects records whose normalized FEN equals targetKey and stops once
// threshold matching games have been seen; threshold <= 0 scans the whole
// stream. Malformed games are counted and skipped.
func (p *Processor) Scan(ctx context.Context, r io.Reader, name string, format record.Format, targetKey string, threshold int) (*Result, error) {
	counting := &countingReader{r: r}

	decoder, err := p.codecs.ForName(name).Reader(counting)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer decoder.Close()

	parser := format.NewParser(decoder)
	res := &Result{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		game, err := parser.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, record.ErrMalformed) {
				res.Malformed++
				p.stats.IncCounter(stats.MetricMalformedRecords, 1)
				continue
			}
			return nil, fmt.Errorf("scanning archive %s: %w", name, err)
		}

		res.GamesScanned++

		matched := false
		for _, rec := range game {
			if rec.FEN == targetKey {
				res.Records = append(res.Records, rec)
				matched = true
			}
		}
		if matched {
			res.MatchingGames++
			if threshold > 0 && res.MatchingGames >= int64(threshold) {
				res.Truncated = true
				break
			}
		}
	}

	res.BytesRead = counting.n.Load()
	p.stats.IncCounter(stats.MetricGamesScanned, res.GamesScanned)
	p.stats.IncCounter(stats.MetricScanBytes, res.BytesRead)

	p.logger.Debug("scan complete",
		zap.String("archive", name),
		zap.Int64("games", res.GamesScanned),
		zap.Int64("matching", res.MatchingGames),
		zap.Int64("malformed", res.Malformed),
		zap.Int64("bytes", res.BytesRead),
		zap.Bool("truncated", res.Truncated),
	)

	return res, nil
}

// Each streams every record of the archive to fn without buffering the
// stream, skipping and counting malformed games. Used to index an archive's
// positions after download. fn returning an error aborts the walk.
func (p *Processor) Each(ctx context.Context, r io.Reader, name string, format record.Format, fn func(record.Record) error) error {
	counting := &countingReader{r: r}

	decoder, err := p.codecs.ForName(name).Reader(counting)
	if err != nil {
		return fmt.Errorf("creating decompressor: %w", err)
	}
	defer decoder.Close()

	parser := format.NewParser(decoder)
	var games int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		game, err := parser.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, record.ErrMalformed) {
				p.stats.IncCounter(stats.MetricMalformedRecords, 1)
				continue
			}
			return fmt.Errorf("scanning archive %s: %w", name, err)
		}

		games++
		for _, rec := range game {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}

	p.stats.IncCounter(stats.MetricGamesScanned, games)
	p.stats.IncCounter(stats.MetricScanBytes, counting.n.Load())
	return nil
}

// countingReader tracks compressed bytes consumed from the underlying stream.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
