// Package scoring implements the hybrid relevancy + recency ranking used
// during retrieval.
package scoring

import (
	"math"
	"time"
)

// RecencyScore converts an event's age into a decay weight in (0, 1].
// Age is the floor of the elapsed time in whole days; clock skew that makes
// the event appear future-dated clamps to zero days, never negative. Both
// instants are normalized to UTC before subtraction so mixed-zone inputs
// compare the same wall instant. decay == 0 disables decay entirely.
func RecencyScore(publishedAt, now time.Time, decay float64) float64 {
	if decay == 0 {
		return 1.0
	}

	daysOld := int(now.UTC().Sub(publishedAt.UTC()).Hours() / 24)
	if daysOld < 0 {
		daysOld = 0
	}
	return math.Exp(-decay * float64(daysOld))
}
