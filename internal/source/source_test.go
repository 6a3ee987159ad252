package source_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/discochess/explorer/internal/source"
)

type fakeSource struct {
	scheme string
	closed bool
}

func (f *fakeSource) Scheme() string { return f.scheme }

func (f *fakeSource) Open(ctx context.Context, uri string, offset int64) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("not implemented")
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestRegistryFor(t *testing.T) {
	https := &fakeSource{scheme: "https"}
	file := &fakeSource{scheme: "file"}
	r := source.NewRegistry(https, file)

	tests := []struct {
		uri     string
		want    source.Source
		wantErr bool
	}{
		{uri: "https://example.com/archive.zst", want: https},
		{uri: "file:///data/archive.zst", want: file},
		{uri: "/data/archive.zst", want: file}, // bare path defaults to file
		{uri: "gs://bucket/archive.zst", wantErr: true},
	}

	for _, tt := range tests {
		got, err := r.For(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("For(%q): expected error, got %v", tt.uri, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("For(%q): unexpected error: %v", tt.uri, err)
			continue
		}
		if got != tt.want {
			t.Errorf("For(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestRegistryRegister(t *testing.T) {
	r := source.NewRegistry()
	s := &fakeSource{scheme: "https"}
	r.Register("http", s)
	r.Register("https", s)

	for _, uri := range []string{"http://example.com/a", "https://example.com/a"} {
		got, err := r.For(uri)
		if err != nil {
			t.Fatalf("For(%q): %v", uri, err)
		}
		if got != s {
			t.Errorf("For(%q) = %v, want %v", uri, got, s)
		}
	}
}

func TestRegistryCloseDeduplicates(t *testing.T) {
	s := &fakeSource{scheme: "http"}
	r := source.NewRegistry(s)
	r.Register("https", s)

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.closed {
		t.Error("expected source to be closed")
	}
}
