package record

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/discochess/explorer/internal/fen"
)

// PGNFormat parses archives of full PGN game texts. Because PGN stores games
// as move lists rather than per-position snapshots, the parser replays each
// game and emits one record per ply, reconstructing every intermediate
// position along the way.
type PGNFormat struct{}

// Compile-time check that PGNFormat implements Format.
var _ Format = (*PGNFormat)(nil)

// NewPGNFormat returns the PGN game-text format.
func NewPGNFormat() *PGNFormat {
	return &PGNFormat{}
}

// Name returns "pgn".
func (f *PGNFormat) Name() string { return "pgn" }

// NewParser returns a parser reading one PGN game at a time from r.
func (f *PGNFormat) NewParser(r io.Reader) Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &pgnParser{scanner: scanner}
}

type pgnParser struct {
	scanner *bufio.Scanner
	pending string // first tag line of the next game, carried across Next calls
	done    bool
}

// Next accumulates lines up to the next game boundary and replays the game.
func (p *pgnParser) Next() ([]Record, error) {
	if p.done {
		return nil, io.EOF
	}

	var gameText strings.Builder
	if p.pending != "" {
		gameText.WriteString(p.pending)
		gameText.WriteString("\n")
		p.pending = ""
	}

	for p.scanner.Scan() {
		line := p.scanner.Text()

		// A new [Event tag after we have content marks the next game.
		if strings.HasPrefix(line, "[Event ") && gameText.Len() > 0 {
			p.pending = line
			return replayGame(gameText.String())
		}

		if gameText.Len() > 0 || strings.HasPrefix(line, "[Event ") {
			gameText.WriteString(line)
			gameText.WriteString("\n")
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading PGN: %w", err)
	}

	p.done = true
	if gameText.Len() == 0 {
		return nil, io.EOF
	}
	return replayGame(gameText.String())
}

// replayGame parses one PGN game and emits a record for every ply.
func replayGame(pgnText string) ([]Record, error) {
	pgnFunc, err := chess.PGN(strings.NewReader(pgnText))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	game := chess.NewGame(pgnFunc)

	var result Result
	switch game.Outcome() {
	case chess.WhiteWon:
		result = WhiteWin
	case chess.BlackWon:
		result = BlackWin
	case chess.Draw:
		result = Draw
	default:
		// Unfinished games carry no statistics.
		return nil, fmt.Errorf("%w: game has no outcome", ErrMalformed)
	}

	moves := game.Moves()
	positions := game.Positions()
	if len(positions) < len(moves) {
		return nil, fmt.Errorf("%w: inconsistent move list", ErrMalformed)
	}

	now := time.Now().UTC()
	records := make([]Record, 0, len(moves))
	for i, move := range moves {
		key, err := fen.Normalize(positions[i].String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		records = append(records, Record{
			FEN:       key,
			Move:      move.String(),
			Result:    result,
			Timestamp: now,
		})
	}

	return records, nil
}
