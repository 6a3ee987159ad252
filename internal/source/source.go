// Package source defines the archive source interface for fetching remote
// archive payloads. Implementations handle one URI scheme each; a Registry
// selects the source for an archive URI.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var (
	// ErrUnavailable indicates the archive does not exist at the source
	// (gone or never published). Callers must not retry.
	ErrUnavailable = errors.New("source: archive unavailable")

	// ErrResumeUnsupported indicates the source cannot serve a stream
	// starting at the requested offset; callers restart from zero.
	ErrResumeUnsupported = errors.New("source: resume not supported")
)

// Source opens archive payload streams. Implementations must support
// resuming: Open with offset > 0 returns a stream positioned at that byte.
type Source interface {
	// Scheme returns the URI scheme this source serves (e.g. "https").
	Scheme() string

	// Open returns a stream over the archive at uri starting at offset, and
	// the total archive size in bytes (or -1 if unknown). Any other error
	// than ErrUnavailable is considered transient by callers.
	Open(ctx context.Context, uri string, offset int64) (io.ReadCloser, int64, error)

	// Close releases any resources held by the source.
	Close() error
}

// Registry maps URI schemes to sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates a registry containing the given sources. A source
// serving multiple schemes (e.g. http and https) should be passed once per
// scheme via Register.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.sources[s.Scheme()] = s
	}
	return r
}

// Register adds a source under the given scheme.
func (r *Registry) Register(scheme string, s Source) {
	r.sources[scheme] = s
}

// For returns the source serving the scheme of uri.
func (r *Registry) For(uri string) (Source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing archive URI %q: %w", uri, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "file"
	}
	s, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("no source registered for scheme %q", scheme)
	}
	return s, nil
}

// Close closes all registered sources, returning the first error.
func (r *Registry) Close() error {
	var first error
	seen := make(map[Source]struct{})
	for _, s := range r.sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
