// Package stats summarizes per-second byte-rate samples.
package stats

import (
	"math"
	"sort"
)

// Summary is the distribution of a sample sequence in bytes per second.
type Summary struct {
	Median  float64 `json:"median"`
	Average float64 `json:"average"`
	P90     int64   `json:"p90"`
	P99     int64   `json:"p99"`
	Min     int64   `json:"min"`
	Max     int64   `json:"max"`
	Count   int     `json:"count"`
}

// Compute sorts a copy of samples and derives median, mean, nearest-rank
// p90/p99 and the extremes. An empty input yields the zero Summary.
func Compute(samples []int64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}

	var median float64
	if n%2 == 0 {
		median = (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
	} else {
		median = float64(sorted[n/2])
	}

	return Summary{
		Median:  median,
		Average: sum / float64(n),
		P90:     Percentile(sorted, 0.90),
		P99:     Percentile(sorted, 0.99),
		Min:     sorted[0],
		Max:     sorted[n-1],
		Count:   n,
	}
}

// Percentile returns the nearest-rank percentile of sorted values:
// index ceil(pct*n)-1, clamped. No interpolation.
func Percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*pct)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ToMbps converts bytes per second to megabits per second.
func ToMbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / 1_000_000
}
