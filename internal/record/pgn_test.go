package record

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const samplePGN = `[Event "Test Match"]
[Site "?"]
[Date "2023.01.01"]
[White "EngineA"]
[Black "EngineB"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 1-0

[Event "Test Match"]
[Site "?"]
[Date "2023.01.01"]
[White "EngineA"]
[Black "EngineB"]
[Result "0-1"]

1. d4 d5 0-1
`

func TestPGNParser_Next(t *testing.T) {
	p := NewPGNFormat().NewParser(strings.NewReader(samplePGN))

	first, err := p.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("first game has %d records, want 5", len(first))
	}
	if first[0].FEN != startKey {
		t.Errorf("first record FEN = %q, want starting position", first[0].FEN)
	}
	if first[0].Move != "e2e4" {
		t.Errorf("first record Move = %q, want e2e4", first[0].Move)
	}
	for i, rec := range first {
		if rec.Result != WhiteWin {
			t.Errorf("record %d Result = %v, want WhiteWin", i, rec.Result)
		}
	}

	// Intermediate positions must be reconstructed and normalized.
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
	if first[1].FEN != afterE4 {
		t.Errorf("second record FEN = %q, want %q", first[1].FEN, afterE4)
	}

	second, err := p.Next()
	if err != nil {
		t.Fatalf("Next() for second game error = %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("second game has %d records, want 2", len(second))
	}
	if second[0].Result != BlackWin {
		t.Errorf("second game Result = %v, want BlackWin", second[0].Result)
	}

	if _, err := p.Next(); err != io.EOF {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}
}

func TestPGNParser_UnfinishedGame(t *testing.T) {
	pgn := `[Event "Ongoing"]
[Result "*"]

1. e4 e5 *
`
	p := NewPGNFormat().NewParser(strings.NewReader(pgn))
	_, err := p.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Next() error = %v, want ErrMalformed", err)
	}
}

func TestPGNParser_Empty(t *testing.T) {
	p := NewPGNFormat().NewParser(strings.NewReader(""))
	if _, err := p.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}
