package stats

import (
	"math/rand"
	"testing"
)

func TestComputeEmpty(t *testing.T) {
	if got := Compute(nil); got != (Summary{}) {
		t.Fatalf("Compute(nil) = %+v, want zero", got)
	}
	if got := Compute([]int64{}); got != (Summary{}) {
		t.Fatalf("Compute([]) = %+v, want zero", got)
	}
}

func TestComputeSingle(t *testing.T) {
	got := Compute([]int64{100})
	want := Summary{Median: 100, Average: 100, P90: 100, P99: 100, Min: 100, Max: 100, Count: 1}
	if got != want {
		t.Fatalf("Compute([100]) = %+v, want %+v", got, want)
	}
}

func TestComputeTwo(t *testing.T) {
	got := Compute([]int64{10, 20})
	if got.Median != 15 || got.Average != 15 {
		t.Fatalf("median/average = %v/%v, want 15/15", got.Median, got.Average)
	}
	if got.Min != 10 || got.Max != 20 {
		t.Fatalf("min/max = %d/%d, want 10/20", got.Min, got.Max)
	}
	if got.P90 != 20 || got.P99 != 20 {
		t.Fatalf("p90/p99 = %d/%d, want 20/20", got.P90, got.P99)
	}
}

func TestComputeNearestRank(t *testing.T) {
	samples := make([]int64, 0, 10)
	for i := int64(1); i <= 10; i++ {
		samples = append(samples, i*10)
	}
	got := Compute(samples)
	// ceil(0.9*10)-1 = 8, ceil(0.99*10)-1 = 9
	if got.P90 != 90 {
		t.Fatalf("p90 = %d, want 90", got.P90)
	}
	if got.P99 != 100 {
		t.Fatalf("p99 = %d, want 100", got.P99)
	}
	if got.Median != 55 {
		t.Fatalf("median = %v, want 55", got.Median)
	}
}

func TestComputeOddMedian(t *testing.T) {
	got := Compute([]int64{7, 1, 3})
	if got.Median != 3 {
		t.Fatalf("median = %v, want 3", got.Median)
	}
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	samples := []int64{3, 1, 2}
	Compute(samples)
	if samples[0] != 3 || samples[1] != 1 || samples[2] != 2 {
		t.Fatalf("input mutated: %v", samples)
	}
}

func TestComputePermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(40)
		samples := make([]int64, n)
		for i := range samples {
			samples[i] = rng.Int63n(1_000_000_000)
		}
		base := Compute(samples)
		shuffled := append([]int64(nil), samples...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := Compute(shuffled); got != base {
			t.Fatalf("trial %d: permuted summary %+v, want %+v", trial, got, base)
		}
		if float64(base.Min) > base.Median || base.Median > float64(base.Max) {
			t.Fatalf("trial %d: median %v outside [%d, %d]", trial, base.Median, base.Min, base.Max)
		}
		if float64(base.Min) > base.Average || base.Average > float64(base.Max) {
			t.Fatalf("trial %d: average %v outside [%d, %d]", trial, base.Average, base.Min, base.Max)
		}
	}
}

func TestPercentileClamp(t *testing.T) {
	sorted := []int64{1, 2, 3}
	if got := Percentile(sorted, 0); got != 1 {
		t.Fatalf("Percentile(0) = %d, want 1", got)
	}
	if got := Percentile(sorted, 1.5); got != 3 {
		t.Fatalf("Percentile(1.5) = %d, want 3", got)
	}
	if got := Percentile(nil, 0.9); got != 0 {
		t.Fatalf("Percentile(nil) = %d, want 0", got)
	}
}

func TestToMbps(t *testing.T) {
	if got := ToMbps(125_000); got != 1 {
		t.Fatalf("ToMbps(125000) = %v, want 1", got)
	}
}
