// Package codec provides compression and decompression for archive payloads
// and cache files.
package codec

import (
	"io"
	"path"
	"strings"
)

// Codec provides compression and decompression functionality.
type Codec interface {
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Extension returns the file extension without dot (e.g., "zst", "gz").
	// Returns empty string for no compression.
	Extension() string
}

// Registry maps file extensions to codecs so callers can pick a codec from
// an archive filename or URI.
type Registry struct {
	codecs   map[string]Codec
	fallback Codec
}

// NewRegistry creates a registry with the given fallback codec, used when no
// extension matches.
func NewRegistry(fallback Codec) *Registry {
	return &Registry{
		codecs:   make(map[string]Codec),
		fallback: fallback,
	}
}

// Register adds a codec keyed by its Extension.
func (r *Registry) Register(c Codec) {
	if ext := c.Extension(); ext != "" {
		r.codecs[ext] = c
	}
}

// ForName returns the codec matching the extension of the given file name or
// URI path, falling back to the registry's default.
func (r *Registry) ForName(name string) Codec {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if c, ok := r.codecs[ext]; ok {
		return c
	}
	return r.fallback
}
