package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/pulse/internal/store"
	"github.com/opswatch/pulse/pkg/models"
)

var rankNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func candidate(id string, distance float64, ageDays int) store.Candidate {
	return store.Candidate{
		Event: &models.Event{
			ID:          id,
			Source:      "test",
			Title:       "event " + id,
			PublishedAt: rankNow.AddDate(0, 0, -ageDays),
		},
		Distance: distance,
	}
}

func ids(scored []models.ScoredEvent) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Event.ID
	}
	return out
}

func TestRankDegenerateInputs(t *testing.T) {
	opts := RankOptions{Alpha: 0.7, Decay: 0.02, Limit: 10, Now: rankNow}

	assert.Empty(t, Rank(nil, opts))
	assert.Empty(t, Rank([]store.Candidate{}, opts))

	opts.Limit = 0
	assert.Empty(t, Rank([]store.Candidate{candidate("a", 0.1, 0)}, opts))
	opts.Limit = -3
	assert.Empty(t, Rank([]store.Candidate{candidate("a", 0.1, 0)}, opts))
}

func TestRankScoreBoundsWithWellFormedInput(t *testing.T) {
	candidates := []store.Candidate{
		candidate("a", 0.0, 0),
		candidate("b", 0.4, 3),
		candidate("c", 1.0, 30),
	}
	scored := Rank(candidates, RankOptions{Alpha: 0.7, Decay: 0.1, Limit: 10, Now: rankNow})
	require.Len(t, scored, 3)
	for _, s := range scored {
		assert.GreaterOrEqual(t, s.RelevancyScore, 0.0)
		assert.LessOrEqual(t, s.RelevancyScore, 1.0)
		assert.Greater(t, s.RecencyScore, 0.0)
		assert.LessOrEqual(t, s.RecencyScore, 1.0)
		assert.GreaterOrEqual(t, s.CombinedScore, 0.0)
		assert.LessOrEqual(t, s.CombinedScore, 1.0)
	}
}

func TestRankAlphaOneIsPureRelevancy(t *testing.T) {
	// Oldest event has the lowest distance; pure relevancy must ignore age.
	candidates := []store.Candidate{
		candidate("recent_far", 0.8, 0),
		candidate("old_near", 0.1, 40),
		candidate("mid", 0.5, 5),
	}
	scored := Rank(candidates, RankOptions{Alpha: 1.0, Decay: 0.2, Limit: 10, Now: rankNow})
	assert.Equal(t, []string{"old_near", "mid", "recent_far"}, ids(scored))
}

func TestRankAlphaZeroIsPureRecency(t *testing.T) {
	// Newest event has the highest distance; pure recency must ignore it.
	candidates := []store.Candidate{
		candidate("old_near", 0.0, 20),
		candidate("recent_far", 0.9, 0),
		candidate("mid", 0.5, 5),
	}
	scored := Rank(candidates, RankOptions{Alpha: 0.0, Decay: 0.1, Limit: 10, Now: rankNow})
	assert.Equal(t, []string{"recent_far", "mid", "old_near"}, ids(scored))
}

func TestRankTiesKeepCandidateOrder(t *testing.T) {
	candidates := []store.Candidate{
		candidate("first", 0.3, 2),
		candidate("second", 0.3, 2),
		candidate("third", 0.3, 2),
	}
	scored := Rank(candidates, RankOptions{Alpha: 0.7, Decay: 0.02, Limit: 10, Now: rankNow})
	assert.Equal(t, []string{"first", "second", "third"}, ids(scored))
}

func TestRankTruncatesToLimit(t *testing.T) {
	candidates := []store.Candidate{
		candidate("a", 0.1, 0),
		candidate("b", 0.2, 0),
		candidate("c", 0.3, 0),
		candidate("d", 0.4, 0),
	}
	scored := Rank(candidates, RankOptions{Alpha: 1.0, Decay: 0, Limit: 2, Now: rankNow})
	assert.Equal(t, []string{"a", "b"}, ids(scored))
}

func TestRankDropsMalformedCandidates(t *testing.T) {
	bad := candidate("nan", math.NaN(), 0)
	inf := candidate("inf", math.Inf(1), 0)
	noEvent := store.Candidate{Event: nil, Distance: 0.1}
	noTime := store.Candidate{Event: &models.Event{ID: "zero"}, Distance: 0.1}
	good := candidate("good", 0.2, 1)

	scored := Rank([]store.Candidate{bad, inf, noEvent, noTime, good},
		RankOptions{Alpha: 0.7, Decay: 0.02, Limit: 10, Now: rankNow})
	assert.Equal(t, []string{"good"}, ids(scored))
}

func TestRankRelevancyUnclampedByDefault(t *testing.T) {
	// A metric returning distance > 1 produces a negative relevancy; the
	// default behavior passes it through untouched.
	out := Rank([]store.Candidate{candidate("a", 1.5, 0)},
		RankOptions{Alpha: 1.0, Decay: 0.02, Limit: 1, Now: rankNow})
	require.Len(t, out, 1)
	assert.InDelta(t, -0.5, out[0].RelevancyScore, 1e-12)

	clamped := Rank([]store.Candidate{candidate("a", 1.5, 0)},
		RankOptions{Alpha: 1.0, Decay: 0.02, Limit: 1, Now: rankNow, ClampRelevancy: true})
	require.Len(t, clamped, 1)
	assert.Equal(t, 0.0, clamped[0].RelevancyScore)
}

func TestRankCombinedScoreFormula(t *testing.T) {
	c := candidate("a", 0.25, 10)
	out := Rank([]store.Candidate{c}, RankOptions{Alpha: 0.6, Decay: 0.05, Limit: 1, Now: rankNow})
	require.Len(t, out, 1)

	wantRelevancy := 0.75
	wantRecency := math.Exp(-0.05 * 10)
	assert.InDelta(t, wantRelevancy, out[0].RelevancyScore, 1e-12)
	assert.InDelta(t, wantRecency, out[0].RecencyScore, 1e-12)
	assert.InDelta(t, 0.6*wantRelevancy+0.4*wantRecency, out[0].CombinedScore, 1e-12)
}
