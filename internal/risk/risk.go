// Package risk derives a 0-100 recency signal from confirmation timestamps.
//
// The signal compares where the most recent fifth of a history begins with
// the full span of that history. A value near 100 means recent activity is
// concentrated close to now; 50 is the neutral answer for short histories.
package risk

import (
	"math"
	"sort"
	"time"
)

const (
	// Neutral is returned when there is not enough signal.
	Neutral = 50.0

	// MinSamples is the smallest history that yields a non-neutral rate.
	MinSamples = 10

	// recentFraction selects the most recent n/recentFraction samples.
	recentFraction = 5
)

// Status labels used by address reports.
const (
	StatusSafe  = "safe"
	StatusRisky = "risky"
)

// Compute returns the recency rate of timestamps relative to now, in [0,100].
// The input does not need to be sorted and is not modified.
func Compute(timestamps []time.Time, now time.Time) float64 {
	n := len(timestamps)
	if n < MinSamples {
		return Neutral
	}

	sorted := make([]time.Time, n)
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	first := sorted[0]
	if !now.After(first) {
		return Neutral
	}
	k := n / recentFraction
	pivot := sorted[n-k]

	ratio := float64(pivot.Sub(first)) / float64(now.Sub(first))
	rate := ratio * 100
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Neutral
	}
	return math.Max(0, math.Min(100, rate))
}

// Classify labels an address by its rate. Rates above Neutral are safe.
func Classify(rate float64) string {
	if rate > Neutral {
		return StatusSafe
	}
	return StatusRisky
}
