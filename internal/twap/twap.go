package twap

import (
	"math"
	"sort"

	"github.com/arbmath/arb-engine/internal/amm"
)

// Sample is one observed (timestamp, price) point. Timestamps are opaque
// monotonic units (seconds, blocks); only their differences matter.
type Sample struct {
	Timestamp int64
	Price     float64
}

// TWAP computes the time-weighted average price: each consecutive interval
// is weighted by its duration and carries the price at its start. Input
// order does not matter — samples are sorted defensively — and a single
// sample is returned unweighted. At least one sample is required.
func TWAP(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, amm.ErrInvalidInput
	}
	for _, s := range samples {
		if s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
			return 0, amm.ErrInvalidInput
		}
	}
	if len(samples) == 1 {
		return samples[0].Price, nil
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var weighted, total float64
	for i := 0; i < len(sorted)-1; i++ {
		dt := float64(sorted[i+1].Timestamp - sorted[i].Timestamp)
		weighted += sorted[i].Price * dt
		total += dt
	}
	if total == 0 {
		// all samples share a timestamp; fall back to the plain mean
		var sum float64
		for _, s := range sorted {
			sum += s.Price
		}
		return sum / float64(len(sorted)), nil
	}
	return weighted / total, nil
}

// Deviation is the relative distance of current from the reference TWAP,
// in percent.
func Deviation(currentPrice, twap float64) float64 {
	if twap <= 0 {
		return math.Inf(1)
	}
	return math.Abs(currentPrice-twap) / twap * 100
}

// Validate reports whether the current price sits within maxDeviationPct of
// the TWAP reference. A failed check is the manipulation signal.
func Validate(currentPrice, twap, maxDeviationPct float64) bool {
	if currentPrice <= 0 || twap <= 0 || maxDeviationPct < 0 {
		return false
	}
	return Deviation(currentPrice, twap) <= maxDeviationPct
}
