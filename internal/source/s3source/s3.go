// Package s3source implements an AWS S3 archive source.
package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/discochess/explorer/internal/source"
)

// Compile-time check that Source implements source.Source.
var _ source.Source = (*Source)(nil)

// Source fetches archives from S3 buckets. Archive URIs use the form
// s3://bucket/path/to/archive.
type Source struct {
	client *s3.Client
}

// Option configures a Source.
type Option func(*Source) error

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(s *Source) error {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			return fmt.Errorf("loading AWS config with region: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
		return nil
	}
}

// WithEndpoint sets a custom endpoint (for S3-compatible services like MinIO).
func WithEndpoint(endpoint string) Option {
	return func(s *Source) error {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("loading AWS config for endpoint: %w", err)
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		return nil
	}
}

// New creates an S3 source using the default credential chain.
func New(ctx context.Context, opts ...Option) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	s := &Source{client: s3.NewFromConfig(cfg)}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Scheme returns "s3".
func (s *Source) Scheme() string { return "s3" }

// Open issues a ranged GetObject starting at offset.
func (s *Source) Open(ctx context.Context, uri string, offset int64) (io.ReadCloser, int64, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, 0, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, 0, fmt.Errorf("%w: %s", source.ErrUnavailable, uri)
		}
		return nil, 0, fmt.Errorf("opening %s: %w", uri, err)
	}

	totalSize := int64(-1)
	if result.ContentLength != nil {
		totalSize = offset + *result.ContentLength
	}
	if result.ContentRange != nil {
		// Format: bytes 0-999/1234
		var start, end, total int64
		if _, err := fmt.Sscanf(*result.ContentRange, "bytes %d-%d/%d", &start, &end, &total); err == nil {
			totalSize = total
		}
	}

	return result.Body, totalSize, nil
}

// Close is a no-op; the S3 client does not need explicit closing.
func (s *Source) Close() error {
	return nil
}

func splitURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parsing S3 URI %q: %w", uri, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q", uri)
	}
	return u.Host, key, nil
}
