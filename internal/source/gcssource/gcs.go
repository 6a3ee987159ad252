// Package gcssource implements a Google Cloud Storage archive source.
package gcssource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/explorer/internal/source"
)

// Compile-time check that Source implements source.Source.
var _ source.Source = (*Source)(nil)

// Source fetches archives from GCS buckets. Archive URIs use the form
// gs://bucket/path/to/archive.
type Source struct {
	client *storage.Client
}

// New creates a GCS source using application default credentials.
func New(ctx context.Context) (*Source, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &Source{client: client}, nil
}

// Scheme returns "gs".
func (s *Source) Scheme() string { return "gs" }

// Open returns a range reader over the object starting at offset.
func (s *Source) Open(ctx context.Context, uri string, offset int64) (io.ReadCloser, int64, error) {
	bucket, object, err := splitURI(uri)
	if err != nil {
		return nil, 0, err
	}

	reader, err := s.client.Bucket(bucket).Object(object).NewRangeReader(ctx, offset, -1)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, 0, fmt.Errorf("%w: %s", source.ErrUnavailable, uri)
		}
		return nil, 0, fmt.Errorf("opening %s: %w", uri, err)
	}

	return reader, reader.Attrs.Size, nil
}

// Close releases the GCS client.
func (s *Source) Close() error {
	return s.client.Close()
}

func splitURI(uri string) (bucket, object string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parsing GCS URI %q: %w", uri, err)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI %q", uri)
	}
	return u.Host, object, nil
}
