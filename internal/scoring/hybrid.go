package scoring

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

// RankOptions tunes one reranking pass.
type RankOptions struct {
	// Alpha weights relevancy against recency: combined =
	// alpha*relevancy + (1-alpha)*recency. Values outside [0,1] are not
	// rejected and produce out-of-range combined scores.
	Alpha float64

	// Decay is the exponential decay parameter for RecencyScore.
	Decay float64

	// Limit truncates the ranked output. Zero or negative yields no results.
	Limit int

	// Now anchors age computation; zero means time.Now in UTC.
	Now time.Time

	// ClampRelevancy bounds relevancy to [0,1]. Off by default: the raw
	// 1-distance value is passed through even when the backend's metric
	// can exceed the unit range.
	ClampRelevancy bool
}

// Rank scores candidates and returns them ordered by combined score,
// highest first. Ties keep the candidates' original order. Candidates with
// unusable inputs (NaN or infinite distance, missing event or timestamp)
// are dropped with a warning instead of aborting the pass. The caller is
// responsible for overfetching; Rank only orders what it is given.
func Rank(candidates []store.Candidate, opts RankOptions) []models.ScoredEvent {
	if len(candidates) == 0 || opts.Limit <= 0 {
		return []models.ScoredEvent{}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	scored := make([]models.ScoredEvent, 0, len(candidates))
	for _, c := range candidates {
		if c.Event == nil || c.Event.PublishedAt.IsZero() ||
			math.IsNaN(c.Distance) || math.IsInf(c.Distance, 0) {
			slog.Warn("dropping malformed candidate from rerank",
				"distance", c.Distance)
			continue
		}

		relevancy := 1.0 - c.Distance
		if opts.ClampRelevancy {
			relevancy = math.Max(0, math.Min(1, relevancy))
		}
		recency := RecencyScore(c.Event.PublishedAt, now, opts.Decay)

		scored = append(scored, models.ScoredEvent{
			Event:          c.Event,
			RelevancyScore: relevancy,
			RecencyScore:   recency,
			CombinedScore:  opts.Alpha*relevancy + (1-opts.Alpha)*recency,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].CombinedScore > scored[j].CombinedScore
	})

	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored
}
