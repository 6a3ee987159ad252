// Package filesource implements a local-filesystem archive source, used for
// tests and for archives already present on disk.
package filesource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/discochess/explorer/internal/source"
)

// Compile-time check that Source implements source.Source.
var _ source.Source = (*Source)(nil)

// Source reads archives from the local filesystem. Archive URIs are plain
// paths or file:// URIs.
type Source struct{}

// New creates a file source.
func New() *Source {
	return &Source{}
}

// Scheme returns "file".
func (s *Source) Scheme() string { return "file" }

// Open opens the file and seeks to offset.
func (s *Source) Open(ctx context.Context, uri string, offset int64) (io.ReadCloser, int64, error) {
	// Check for cancellation before starting I/O.
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", source.ErrUnavailable, path)
		}
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seeking %s: %w", path, err)
		}
	}

	return f, info.Size(), nil
}

// Close is a no-op.
func (s *Source) Close() error {
	return nil
}
