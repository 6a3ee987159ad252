package explorer

import "github.com/discochess/explorer/internal/aggregate"

// MoveStat aggregates the observed games for one move from one position.
// Scores in a Statistics result are surfaced from the perspective of the
// query's Side.
type MoveStat = aggregate.MoveStat

// Confidence grades a statistic's reliability by sample size.
type Confidence = aggregate.Confidence

// Confidence levels.
const (
	ConfidenceLow    = aggregate.ConfidenceLow
	ConfidenceMedium = aggregate.ConfidenceMedium
	ConfidenceHigh   = aggregate.ConfidenceHigh
)

// Side selects the perspective a query's scores are surfaced from. It does
// not change which games are counted.
type Side string

// Query perspectives.
const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Statistics is the result of one position query.
type Statistics struct {
	// FEN is the normalized position key the query resolved to.
	FEN string `json:"fen"`

	// Moves holds one aggregated entry per (move, source tag), sorted by
	// performance score descending.
	Moves []MoveStat `json:"moves"`

	// PositionConfidence grades the total sample size across all moves.
	PositionConfidence Confidence `json:"position_confidence"`

	// FailedArchives lists archives that could not be ingested for this
	// query; statistics were computed from the successful subset.
	FailedArchives []string `json:"failed_archives,omitempty"`
}

// TotalGames returns the position's total sample size.
func (s *Statistics) TotalGames() int {
	return aggregate.TotalGames(s.Moves)
}

// flipStat re-surfaces a stat from the opposite perspective: wins and
// losses swap and the performance score mirrors around 0.5. The underlying
// game counts are unchanged.
func flipStat(ms MoveStat) MoveStat {
	ms.Wins, ms.Losses = ms.Losses, ms.Wins
	ms.PerformanceScore = 1 - ms.PerformanceScore
	if decisive := ms.Wins + ms.Losses; decisive > 0 {
		ms.DecisivenessScore = float64(ms.Wins) / float64(decisive)
		ms.HasDecisiveness = true
	} else {
		ms.DecisivenessScore = 0
		ms.HasDecisiveness = false
	}
	if ms.Side == "white" {
		ms.Side = "black"
	} else {
		ms.Side = "white"
	}
	return ms
}
