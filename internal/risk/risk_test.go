package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func spread(n int, from, to time.Time) []time.Time {
	out := make([]time.Time, n)
	step := to.Sub(from) / time.Duration(n-1)
	for i := range out {
		out[i] = from.Add(time.Duration(i) * step)
	}
	return out
}

func TestComputeNeutralForShortHistories(t *testing.T) {
	assert.Equal(t, Neutral, Compute(nil, now))
	assert.Equal(t, Neutral, Compute([]time.Time{}, now))
	assert.Equal(t, Neutral, Compute(spread(9, now.AddDate(-1, 0, 0), now.Add(-time.Hour)), now))
}

func TestComputeRecentClusterApproachesHundred(t *testing.T) {
	yearAgo := now.AddDate(-1, 0, 0)
	ts := spread(8, yearAgo, now.AddDate(0, 0, -30))
	ts = append(ts, now.Add(-20*time.Hour), now.Add(-2*time.Hour))

	rate := Compute(ts, now)
	assert.InDelta(t, 100, rate, 0.5)
	assert.LessOrEqual(t, rate, 100.0)
}

func TestComputeEvenHistory(t *testing.T) {
	// Ten samples from a year ago to now: the pivot is the ninth of ten
	// evenly spaced points.
	ts := spread(10, now.AddDate(-1, 0, 0), now)
	assert.InDelta(t, 800.0/9.0, Compute(ts, now), 0.01)
}

func TestComputeOldActivityIsLow(t *testing.T) {
	start := now.AddDate(-2, 0, 0)
	ts := spread(10, start, start.Add(24*time.Hour))
	assert.Less(t, Compute(ts, now), 1.0)
}

func TestComputeSortsInput(t *testing.T) {
	ts := spread(10, now.AddDate(-1, 0, 0), now)
	shuffled := []time.Time{ts[5], ts[9], ts[0], ts[3], ts[8], ts[1], ts[7], ts[2], ts[6], ts[4]}
	before := append([]time.Time(nil), shuffled...)

	assert.Equal(t, Compute(ts, now), Compute(shuffled, now))
	assert.Equal(t, before, shuffled)
}

func TestComputeFutureFirstIsNeutral(t *testing.T) {
	ts := spread(10, now, now.Add(10*time.Hour))
	assert.Equal(t, Neutral, Compute(ts, now))

	ts = spread(10, now.Add(time.Hour), now.Add(10*time.Hour))
	assert.Equal(t, Neutral, Compute(ts, now))
}

func TestComputeClampsAboveHundred(t *testing.T) {
	ts := spread(10, now.Add(-10*time.Hour), now.Add(-9*time.Hour))
	ts[8], ts[9] = now.Add(time.Hour), now.Add(2*time.Hour)
	assert.Equal(t, 100.0, Compute(ts, now))
}

func TestComputeIdenticalTimestamps(t *testing.T) {
	ts := make([]time.Time, 12)
	for i := range ts {
		ts[i] = now.Add(-time.Hour)
	}
	assert.Equal(t, 0.0, Compute(ts, now))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusSafe, Classify(50.1))
	assert.Equal(t, StatusRisky, Classify(Neutral))
	assert.Equal(t, StatusRisky, Classify(0))
}
