package diskbackend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/discochess/explorer/internal/cache"
	"github.com/discochess/explorer/internal/cache/diskbackend"
	"github.com/discochess/explorer/internal/codec/gzipcodec"
	"github.com/discochess/explorer/internal/codec/noopcodec"
)

const entryKey = "raw|rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -|arch-1"

func TestPutGetRoundtrip(t *testing.T) {
	b, err := diskbackend.New(t.TempDir(), gzipcodec.New())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	payload := []byte(`[{"FEN":"x","Move":"e2e4"}]`)
	size, err := b.Put(context.Background(), entryKey, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size <= 0 {
		t.Errorf("stored size = %d", size)
	}

	got, err := b.Get(context.Background(), entryKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
}

func TestGetMissing(t *testing.T) {
	b, err := diskbackend.New(t.TempDir(), noopcodec.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(context.Background(), "absent"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecoversKeys(t *testing.T) {
	dir := t.TempDir()
	b, err := diskbackend.New(dir, gzipcodec.New())
	if err != nil {
		t.Fatal(err)
	}

	keys := []string{entryKey, "agg|some other key"}
	for _, k := range keys {
		if _, err := b.Put(context.Background(), k, []byte("data")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := b.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != len(keys) {
		t.Fatalf("List returned %d entries, want %d", len(entries), len(keys))
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Key] = true
		if e.Size <= 0 {
			t.Errorf("entry %q has size %d", e.Key, e.Size)
		}
	}
	for _, k := range keys {
		if !seen[k] {
			t.Errorf("List missing key %q", k)
		}
	}
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	b, err := diskbackend.New(dir, gzipcodec.New())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Put(context.Background(), entryKey, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	// Clobber the compressed file.
	files, err := os.ReadDir(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("ReadDir: %v (%d files)", err, len(files))
	}
	if err := os.WriteFile(filepath.Join(dir, files[0].Name()), []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Get(context.Background(), entryKey); !errors.Is(err, cache.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestDeleteMissingIsNoError(t *testing.T) {
	b, err := diskbackend.New(t.TempDir(), noopcodec.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Delete("never stored"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}
