package pacing

import (
	"math/rand"
	"time"
)

// RandomDelay picks a uniformly distributed delay in [minMinutes, maxMinutes]
// with millisecond resolution. Swapped bounds are normalized.
func RandomDelay(minMinutes, maxMinutes int, rng *rand.Rand) time.Duration {
	if maxMinutes < minMinutes {
		minMinutes, maxMinutes = maxMinutes, minMinutes
	}
	if minMinutes < 0 {
		minMinutes = 0
	}
	if maxMinutes < 0 {
		maxMinutes = 0
	}
	minMs := int64(minMinutes) * 60000
	spanMs := int64(maxMinutes-minMinutes)*60000 + 1
	var r float64
	if rng != nil {
		r = rng.Float64()
	} else {
		r = rand.Float64()
	}
	return time.Duration(int64(r*float64(spanMs))+minMs) * time.Millisecond
}
