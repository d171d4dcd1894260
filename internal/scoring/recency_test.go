package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScoreFreshEventIsOne(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, RecencyScore(now, now, 0.02))
}

func TestRecencyScoreStrictlyDecreasing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := math.Inf(1)
	for days := 0; days <= 30; days++ {
		score := RecencyScore(now.AddDate(0, 0, -days), now, 0.1)
		assert.Less(t, score, prev, "score must decrease at %d days", days)
		assert.Greater(t, score, 0.0)
		prev = score
	}
}

func TestRecencyScoreZeroDecay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, days := range []int{0, 1, 100, 10000} {
		assert.Equal(t, 1.0, RecencyScore(now.AddDate(0, 0, -days), now, 0))
	}
}

func TestRecencyScoreClampsFutureTimestamps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Clock skew: published after now must clamp to zero days, not go
	// above 1.0.
	assert.Equal(t, 1.0, RecencyScore(now.Add(3*time.Hour), now, 0.5))
	assert.Equal(t, 1.0, RecencyScore(now.AddDate(0, 0, 2), now, 0.5))
}

func TestRecencyScoreFloorsPartialDays(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 36 hours old floors to 1 day.
	got := RecencyScore(now.Add(-36*time.Hour), now, 0.2)
	assert.InDelta(t, math.Exp(-0.2), got, 1e-12)

	// 23 hours old floors to 0 days.
	assert.Equal(t, 1.0, RecencyScore(now.Add(-23*time.Hour), now, 0.2))
}

func TestRecencyScoreNormalizesTimezones(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	instant := now.Add(-49 * time.Hour)

	utcScore := RecencyScore(instant, now, 0.05)
	zoned := instant.In(time.FixedZone("UTC+5", 5*3600))
	zonedScore := RecencyScore(zoned, now, 0.05)

	// Same wall instant in a different zone must score identically.
	assert.Equal(t, utcScore, zonedScore)
	assert.InDelta(t, math.Exp(-0.05*2), utcScore, 1e-12)

	// And a zoned "now" must not shift the age either.
	zonedNow := now.In(time.FixedZone("UTC-7", -7*3600))
	assert.Equal(t, utcScore, RecencyScore(instant, zonedNow, 0.05))
}
