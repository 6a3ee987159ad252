// Package record defines game-ply observation records and the pluggable
// parsers that extract them from archive payloads.
package record

import (
	"errors"
	"io"
	"time"
)

// Sentinel errors for well-defined parse conditions.
var (
	// ErrMalformed indicates a single game record could not be parsed.
	// Scans skip and count these; they are not fatal to the stream.
	ErrMalformed = errors.New("record: malformed game record")

	// ErrUnknownFormat indicates no parser is registered for a format name.
	ErrUnknownFormat = errors.New("record: unknown archive format")
)

// Result is the outcome of a finished game.
type Result int8

const (
	WhiteWin Result = iota
	BlackWin
	Draw
)

// String returns the conventional PGN result string.
func (r Result) String() string {
	switch r {
	case WhiteWin:
		return "1-0"
	case BlackWin:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

// ParseResult parses a PGN result string. Unfinished games ("*") and
// anything unrecognized are malformed for statistics purposes.
func ParseResult(s string) (Result, error) {
	switch s {
	case "1-0":
		return WhiteWin, nil
	case "0-1":
		return BlackWin, nil
	case "1/2-1/2":
		return Draw, nil
	default:
		return 0, ErrMalformed
	}
}

// Record is one observed game ply: a position, the move played from it, and
// the final result of the game it came from. Records are immutable once
// ingested.
type Record struct {
	// FEN is the normalized position key (4 fields).
	FEN string

	// Move is the move played from FEN, in coordinate notation (e.g. "e2e4").
	Move string

	// Result is the final outcome of the game.
	Result Result

	// SourceTag identifies the engine/network/dataset that produced the game.
	// Filled in by the ingestion pipeline, not by parsers.
	SourceTag string

	// Timestamp is when the observation was recorded.
	Timestamp time.Time
}

// Parser produces the records of one game at a time from a stream.
// Implementations return io.EOF when the stream is exhausted and ErrMalformed
// (possibly wrapped) for an individual game that cannot be parsed; the caller
// decides whether to skip or abort.
type Parser interface {
	// Next returns all per-ply records of the next game in the stream.
	Next() ([]Record, error)
}

// Format constructs parsers for one archive payload format.
type Format interface {
	// Name returns the format identifier used in configuration.
	Name() string

	// NewParser returns a parser reading games from r.
	NewParser(r io.Reader) Parser
}

// Registry maps format names to Format implementations.
type Registry struct {
	formats map[string]Format
}

// NewRegistry creates a registry containing the given formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{formats: make(map[string]Format)}
	for _, f := range formats {
		r.formats[f.Name()] = f
	}
	return r
}

// Register adds a format, replacing any existing format of the same name.
func (r *Registry) Register(f Format) {
	r.formats[f.Name()] = f
}

// Get returns the format registered under name.
func (r *Registry) Get(name string) (Format, error) {
	f, ok := r.formats[name]
	if !ok {
		return nil, ErrUnknownFormat
	}
	return f, nil
}
