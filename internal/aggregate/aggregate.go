// Package aggregate derives per-move statistics from raw game records. The
// aggregated form is a cache of this derivation, never a source of truth:
// it can be recomputed from the records at any time.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/discochess/explorer/internal/fen"
	"github.com/discochess/explorer/internal/record"
)

// Confidence grades the reliability of a statistic by sample size.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Thresholds sets the game counts at which confidence upgrades. A total
// below Medium is low; below High is medium; at or above High is high.
type Thresholds struct {
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// DefaultThresholds returns the standard confidence boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 10, High: 50}
}

// Grade returns the confidence level for a sample of totalGames.
func (t Thresholds) Grade(totalGames int) Confidence {
	switch {
	case totalGames >= t.High:
		return ConfidenceHigh
	case totalGames >= t.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// MoveStat aggregates all observed games for one move from one position,
// partitioned by source tag. Wins and losses are counted from the
// perspective of the side to move in the position.
type MoveStat struct {
	FEN       string `json:"fen"`
	Move      string `json:"move"`
	SourceTag string `json:"source_tag"`
	Side      string `json:"side"` // side to move: "white" or "black"

	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Draws      int `json:"draws"`
	TotalGames int `json:"total_games"`

	// PerformanceScore is (wins + draws/2) / total.
	PerformanceScore float64 `json:"performance_score"`

	// DecisivenessScore is wins/(wins+losses). Undefined when every game
	// drew; HasDecisiveness reports whether it holds a value.
	DecisivenessScore float64 `json:"decisiveness_score"`
	HasDecisiveness   bool    `json:"has_decisiveness"`

	// StdError is the standard error of the per-game score sample.
	StdError float64 `json:"std_error"`

	Confidence Confidence `json:"confidence"`
}

type statKey struct {
	fen  string
	move string
	tag  string
}

// Aggregate partitions records by (position, move, source tag) and computes
// a MoveStat per partition, sorted by performance score descending.
func Aggregate(records []record.Record, thresholds Thresholds) []MoveStat {
	type counts struct {
		side                string
		wins, losses, draws int
	}
	buckets := make(map[statKey]*counts)

	for _, rec := range records {
		side, err := fen.SideToMove(rec.FEN)
		if err != nil {
			// Records carry normalized keys; anything else is skipped.
			continue
		}

		key := statKey{fen: rec.FEN, move: rec.Move, tag: rec.SourceTag}
		c, ok := buckets[key]
		if !ok {
			c = &counts{side: side}
			buckets[key] = c
		}

		whiteToMove := side == "w"
		switch rec.Result {
		case record.Draw:
			c.draws++
		case record.WhiteWin:
			if whiteToMove {
				c.wins++
			} else {
				c.losses++
			}
		case record.BlackWin:
			if whiteToMove {
				c.losses++
			} else {
				c.wins++
			}
		}
	}

	out := make([]MoveStat, 0, len(buckets))
	for key, c := range buckets {
		total := c.wins + c.losses + c.draws
		if total == 0 {
			continue
		}

		ms := MoveStat{
			FEN:        key.fen,
			Move:       key.move,
			SourceTag:  key.tag,
			Side:       sideName(c.side),
			Wins:       c.wins,
			Losses:     c.losses,
			Draws:      c.draws,
			TotalGames: total,
			Confidence: thresholds.Grade(total),
		}
		ms.PerformanceScore = (float64(c.wins) + 0.5*float64(c.draws)) / float64(total)
		if decisive := c.wins + c.losses; decisive > 0 {
			ms.DecisivenessScore = float64(c.wins) / float64(decisive)
			ms.HasDecisiveness = true
		}
		ms.StdError = scoreStdError(c.wins, c.draws, c.losses)

		out = append(out, ms)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PerformanceScore != out[j].PerformanceScore {
			return out[i].PerformanceScore > out[j].PerformanceScore
		}
		if out[i].Move != out[j].Move {
			return out[i].Move < out[j].Move
		}
		return out[i].SourceTag < out[j].SourceTag
	})
	return out
}

// TotalGames sums the game counts across stats. Each game appears in
// exactly one partition, so the sum is the position's sample size.
func TotalGames(stats []MoveStat) int {
	total := 0
	for _, ms := range stats {
		total += ms.TotalGames
	}
	return total
}

// scoreStdError computes the standard error of the per-game score sample
// (win=1, draw=0.5, loss=0) from the outcome counts.
func scoreStdError(wins, draws, losses int) float64 {
	total := wins + draws + losses
	if total < 2 {
		return 0
	}
	scores := []float64{1, 0.5, 0}
	weights := []float64{float64(wins), float64(draws), float64(losses)}
	variance := stat.Variance(scores, weights)
	return stat.StdErr(math.Sqrt(variance), float64(total))
}

func sideName(side string) string {
	if side == "b" {
		return "black"
	}
	return "white"
}
