// Package diskbackend implements a disk cache backend storing one
// codec-compressed file per entry.
package diskbackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/discochess/explorer/internal/cache"
	"github.com/discochess/explorer/internal/codec"
)

// Compile-time check that Backend implements cache.Backend.
var _ cache.Backend = (*Backend)(nil)

// Backend stores each entry as a compressed file under root. Entry keys are
// path-escaped into filenames so they can be recovered by listing the
// directory.
type Backend struct {
	root  string
	codec codec.Codec
}

// New creates a disk backend rooted at the given directory, creating it if
// needed. The codec handles per-entry compression.
func New(root string, c codec.Codec) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Backend{root: root, codec: c}, nil
}

// Get reads and decompresses the entry. Undecodable content maps to
// cache.ErrCorrupt.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	// Check for cancellation before starting I/O.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	compressed, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	reader, err := b.codec.Reader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrCorrupt, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrCorrupt, err)
	}
	return data, nil
}

// Put compresses and writes the entry atomically, returning the on-disk
// size.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	writer, err := b.codec.Writer(&buf)
	if err != nil {
		return 0, fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return 0, fmt.Errorf("compressing cache entry: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("finishing compression: %w", err)
	}

	path := b.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replacing cache entry: %w", err)
	}
	return int64(buf.Len()), nil
}

// Delete removes the entry file. Missing files are not an error.
func (b *Backend) Delete(key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// List scans the cache directory and recovers the keys from the filenames.
func (b *Backend) List() ([]cache.BackendEntry, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("listing cache directory: %w", err)
	}

	suffix := b.suffix()
	var out []cache.BackendEntry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, suffix))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, cache.BackendEntry{Key: key, Size: info.Size()})
	}
	return out, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.root, url.PathEscape(key)+b.suffix())
}

func (b *Backend) suffix() string {
	if ext := b.codec.Extension(); ext != "" {
		return ".entry." + ext
	}
	return ".entry"
}
