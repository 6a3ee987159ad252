package record

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/discochess/explorer/internal/fen"
)

// PlainFormat parses line-oriented archives where each line is one game-ply
// observation: fen|move|result|timestamp (pipe-delimited, timestamp in unix
// seconds).
type PlainFormat struct{}

// Compile-time check that PlainFormat implements Format.
var _ Format = (*PlainFormat)(nil)

// NewPlainFormat returns the pipe-delimited line format.
func NewPlainFormat() *PlainFormat {
	return &PlainFormat{}
}

// Name returns "plain".
func (f *PlainFormat) Name() string { return "plain" }

// NewParser returns a parser reading one observation per line from r.
func (f *PlainFormat) NewParser(r io.Reader) Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &plainParser{scanner: scanner}
}

type plainParser struct {
	scanner *bufio.Scanner
}

// Next returns the single record of the next non-empty line.
func (p *plainParser) Next() ([]Record, error) {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parsePlainLine(line)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return nil, io.EOF
}

func parsePlainLine(line string) (Record, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformed, len(parts))
	}

	key, err := fen.Normalize(parts[0])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	move := strings.TrimSpace(parts[1])
	if move == "" {
		return Record{}, fmt.Errorf("%w: empty move", ErrMalformed)
	}

	result, err := ParseResult(strings.TrimSpace(parts[2]))
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad result %q", ErrMalformed, parts[2])
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, parts[3])
	}

	return Record{
		FEN:       key,
		Move:      move,
		Result:    result,
		Timestamp: time.Unix(secs, 0).UTC(),
	}, nil
}
