package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	explorer "github.com/discochess/explorer"
)

var queryCmd = &cobra.Command{
	Use:   "query [FEN]",
	Short: "Query aggregated move statistics for a position",
	Long: `Query aggregated per-move statistics for a chess position given in
FEN notation. Halfmove clock and fullmove number are ignored, so transposed
move orders resolve to the same position.

Examples:
  # Starting position
  explorer query "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

  # Only games from one engine network, from Black's perspective
  explorer query --network lc0-v1 --side black "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var (
	queryNetwork string
	querySide    string
	queryJSON    bool
	queryTiming  bool
)

func init() {
	queryCmd.Flags().StringVar(&queryNetwork, "network", "", "restrict results to one source tag")
	queryCmd.Flags().StringVar(&querySide, "side", "", "perspective: white or black (default: side to move)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output result as JSON")
	queryCmd.Flags().BoolVar(&queryTiming, "timing", false, "show query timing")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	start := time.Now()
	stats, err := client.GetStatistics(context.Background(), args[0], queryNetwork, explorer.Side(querySide))
	if err != nil {
		if errors.Is(err, explorer.ErrMalformedFEN) {
			return fmt.Errorf("invalid FEN: %s", args[0])
		}
		return fmt.Errorf("query failed: %w", err)
	}
	elapsed := time.Since(start)

	if queryJSON {
		return printStatsJSON(stats, elapsed)
	}
	printStatsText(stats, elapsed)
	return nil
}

func printStatsText(stats *explorer.Statistics, elapsed time.Duration) {
	fmt.Printf("Position:   %s\n", stats.FEN)
	fmt.Printf("Games:      %d\n", stats.TotalGames())
	fmt.Printf("Confidence: %s\n", stats.PositionConfidence)

	for _, ms := range stats.Moves {
		decisive := "n/a"
		if ms.HasDecisiveness {
			decisive = fmt.Sprintf("%.1f%%", 100*ms.DecisivenessScore)
		}
		fmt.Printf("  %-8s %5.1f%%  (+%d =%d -%d, decisive %s, %s) [%s]\n",
			ms.Move, 100*ms.PerformanceScore,
			ms.Wins, ms.Draws, ms.Losses, decisive, ms.Confidence, ms.SourceTag)
	}

	for _, id := range stats.FailedArchives {
		fmt.Fprintf(os.Stderr, "warning: archive %s could not be ingested\n", id)
	}
	if queryTiming {
		fmt.Printf("Time:       %s\n", elapsed)
	}
}

func printStatsJSON(stats *explorer.Statistics, elapsed time.Duration) error {
	out := struct {
		*explorer.Statistics
		TotalGames int   `json:"total_games"`
		ElapsedMS  int64 `json:"elapsed_ms,omitempty"`
	}{
		Statistics: stats,
		TotalGames: stats.TotalGames(),
	}
	if queryTiming {
		out.ElapsedMS = elapsed.Milliseconds()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
