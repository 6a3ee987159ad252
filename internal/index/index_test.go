package index_test

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/discochess/explorer/internal/index"
)

const (
	keyA = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	keyB = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
)

func TestRegisterAndLookup(t *testing.T) {
	ix := index.New()
	ix.Register(keyA, "lichess-2024-01")
	ix.Register(keyA, "lichess-2024-02")
	ix.Register(keyB, "lichess-2024-01")

	got := ix.Lookup(keyA)
	want := []string{"lichess-2024-01", "lichess-2024-02"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lookup(keyA) = %v, want %v", got, want)
	}

	if got := ix.Lookup("unknown"); got != nil {
		t.Errorf("Lookup(unknown) = %v, want nil", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	ix := index.New()
	for i := 0; i < 5; i++ {
		ix.Register(keyA, "lichess-2024-01")
	}
	if got := ix.Lookup(keyA); len(got) != 1 {
		t.Errorf("Lookup after repeated Register = %v, want one entry", got)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	ix := index.New()
	ix.Register(keyA, "lichess-2024-01")
	ix.Register(keyA, "twic-1500")
	ix.Register(keyB, "twic-1500")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := index.New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := loaded.Lookup(keyA); !reflect.DeepEqual(got, []string{"lichess-2024-01", "twic-1500"}) {
		t.Errorf("Lookup(keyA) after load = %v", got)
	}
	if got := loaded.Lookup(keyB); !reflect.DeepEqual(got, []string{"twic-1500"}) {
		t.Errorf("Lookup(keyB) after load = %v", got)
	}
	if loaded.Len() != 2 {
		t.Errorf("Len = %d, want 2", loaded.Len())
	}
}

func TestLoadMissingFile(t *testing.T) {
	ix := index.New()
	if err := ix.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if ix.Len() != 0 {
		t.Errorf("Len = %d, want 0", ix.Len())
	}
}

func TestRebuild(t *testing.T) {
	ix := index.New()
	ix.Register(keyA, "stale-archive")

	err := ix.Rebuild(func(emit func(key, archiveID string)) error {
		emit(keyA, "lichess-2024-03")
		emit(keyB, "lichess-2024-03")
		return nil
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if got := ix.Lookup(keyA); !reflect.DeepEqual(got, []string{"lichess-2024-03"}) {
		t.Errorf("Lookup(keyA) after rebuild = %v", got)
	}
}

func TestRebuildFailureKeepsOld(t *testing.T) {
	ix := index.New()
	ix.Register(keyA, "original")

	walkErr := errors.New("walk failed")
	err := ix.Rebuild(func(emit func(key, archiveID string)) error {
		emit(keyB, "partial")
		return walkErr
	})
	if !errors.Is(err, walkErr) {
		t.Fatalf("Rebuild error = %v, want wrapped walk error", err)
	}
	if got := ix.Lookup(keyA); len(got) != 1 || got[0] != "original" {
		t.Errorf("failed rebuild must keep old contents, got %v", got)
	}
	if got := ix.Lookup(keyB); got != nil {
		t.Errorf("failed rebuild leaked partial contents: %v", got)
	}
}

func TestArchives(t *testing.T) {
	ix := index.New()
	ix.Register(keyA, "zeta")
	ix.Register(keyB, "alpha")

	got := ix.Archives()
	if !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("Archives = %v, want sorted IDs", got)
	}
}
