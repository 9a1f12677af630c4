package engine

import (
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

// Direction says which leg of a candidate pair is cheap.
type Direction int

const (
	DirectionNone Direction = iota
	// DirectionForward: first pool is the buy leg, second the sell leg.
	DirectionForward
	// DirectionReverse: the pair is priced the other way around.
	DirectionReverse
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	default:
		return "none"
	}
}

// Opportunity is the outcome of comparing two venues for one pair.
type Opportunity struct {
	Found        bool
	PriceDiffPct float64
	Direction    Direction
}

// comparePrices returns the percentage gap between two spot prices,
// relative to the lower one.
func comparePrices(a, b *big.Float) float64 {
	cmp := a.Cmp(b)
	if cmp == 0 {
		return 0
	}
	higher, lower := a, b
	if cmp < 0 {
		higher, lower = b, a
	}
	diff := new(big.Float).Sub(higher, lower)
	pct := new(big.Float).Quo(diff, lower)
	pct.Mul(pct, big.NewFloat(100))
	v, _ := pct.Float64()
	return v
}

// FindOpportunity compares the round-trip prices of two pools quoting the
// same pair in opposite directions. A spread below minDiffPct is not an
// opportunity — that is the expected hot-path outcome, not an error.
func FindOpportunity(first, second amm.Pool, minDiffPct float64) (Opportunity, error) {
	firstSpot, err := first.SpotPrice()
	if err != nil {
		return Opportunity{}, err
	}
	secondSpot, err := second.SpotPrice()
	if err != nil {
		return Opportunity{}, err
	}

	// second quotes the reverse direction, so its implied forward price is
	// the reciprocal
	impliedSecond := new(big.Float).Quo(big.NewFloat(1), secondSpot)

	diff := comparePrices(firstSpot, impliedSecond)
	if diff < minDiffPct {
		return Opportunity{PriceDiffPct: diff}, nil
	}

	// first venue paying more than the second charges means the cycle is
	// profitable as given; otherwise it pays to run it the other way
	direction := DirectionForward
	if firstSpot.Cmp(impliedSecond) < 0 {
		direction = DirectionReverse
	}
	return Opportunity{Found: true, PriceDiffPct: diff, Direction: direction}, nil
}
