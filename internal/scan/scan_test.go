package scan

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/discochess/explorer/internal/codec"
	"github.com/discochess/explorer/internal/codec/gzipcodec"
	"github.com/discochess/explorer/internal/codec/noopcodec"
	"github.com/discochess/explorer/internal/record"
)

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	startKey = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	otherFEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
)

func newTestProcessor() *Processor {
	codecs := codec.NewRegistry(noopcodec.New())
	codecs.Register(gzipcodec.New())
	return New(codecs, nil, nil)
}

func plainArchive(n int, fen, result string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s|e2e4|%s|%d\n", fen, result, 1674000000+i)
	}
	return b.String()
}

func TestProcessor_Scan(t *testing.T) {
	input := plainArchive(5, startFEN, "1-0") + plainArchive(3, otherFEN, "0-1")

	p := newTestProcessor()
	res, err := p.Scan(context.Background(), strings.NewReader(input), "games.rec", record.NewPlainFormat(), startKey, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if res.MatchingGames != 5 {
		t.Errorf("MatchingGames = %d, want 5", res.MatchingGames)
	}
	if len(res.Records) != 5 {
		t.Errorf("len(Records) = %d, want 5", len(res.Records))
	}
	if res.GamesScanned != 8 {
		t.Errorf("GamesScanned = %d, want 8", res.GamesScanned)
	}
	if res.Truncated {
		t.Error("Truncated = true for full scan")
	}
}

func TestProcessor_Scan_EarlyTermination(t *testing.T) {
	// More matching games than the threshold: the scan must stop early and
	// consume strictly fewer bytes than the archive holds.
	input := plainArchive(20000, startFEN, "1-0")

	p := newTestProcessor()
	res, err := p.Scan(context.Background(), strings.NewReader(input), "games.rec", record.NewPlainFormat(), startKey, 10)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if res.MatchingGames != 10 {
		t.Errorf("MatchingGames = %d, want 10", res.MatchingGames)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if res.BytesRead >= int64(len(input)) {
		t.Errorf("BytesRead = %d, want < %d (early termination must leave bytes unread)", res.BytesRead, len(input))
	}
}

func TestProcessor_Scan_MalformedSkipped(t *testing.T) {
	input := plainArchive(2, startFEN, "1-0") +
		"garbage line without pipes\n" +
		"a|b|c\n" +
		plainArchive(1, startFEN, "1/2-1/2")

	p := newTestProcessor()
	res, err := p.Scan(context.Background(), strings.NewReader(input), "games.rec", record.NewPlainFormat(), startKey, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if res.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", res.Malformed)
	}
	if res.MatchingGames != 3 {
		t.Errorf("MatchingGames = %d, want 3", res.MatchingGames)
	}
}

func TestProcessor_Scan_Gzip(t *testing.T) {
	var buf bytes.Buffer
	w, err := gzipcodec.New().Writer(&buf)
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	if _, err := w.Write([]byte(plainArchive(4, startFEN, "0-1"))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	p := newTestProcessor()
	res, err := p.Scan(context.Background(), &buf, "games.rec.gz", record.NewPlainFormat(), startKey, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.MatchingGames != 4 {
		t.Errorf("MatchingGames = %d, want 4", res.MatchingGames)
	}
}

func TestProcessor_Scan_PGNIntermediatePositions(t *testing.T) {
	pgn := `[Event "Test"]
[Result "1-0"]

1. e4 e5 2. Nf3 1-0
`
	// Query a position only reachable mid-game: after 1. e4.
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"

	p := newTestProcessor()
	res, err := p.Scan(context.Background(), strings.NewReader(pgn), "games.pgn", record.NewPGNFormat(), afterE4, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.MatchingGames != 1 {
		t.Errorf("MatchingGames = %d, want 1", res.MatchingGames)
	}
	if len(res.Records) != 1 || res.Records[0].Move != "e7e5" {
		t.Errorf("Records = %+v, want one e7e5 record", res.Records)
	}
}

func TestProcessor_Scan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProcessor()
	_, err := p.Scan(ctx, strings.NewReader(plainArchive(10, startFEN, "1-0")), "games.rec", record.NewPlainFormat(), startKey, 0)
	if err != context.Canceled {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}
