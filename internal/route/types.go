package route

import (
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

// Leg is one hop through a pool at a given fee tier.
type Leg struct {
	Pool amm.Pool
	Fee  float64
}

// Path is an ordered sequence of legs; each leg's output token is the next
// leg's input token.
type Path []Leg

// Quote is one venue's answer for the same trade, used to pick a route.
type Quote struct {
	AmountOut   *big.Int
	SlippagePct float64
}

// SimulationResult is the outcome for a single candidate path. A failed
// path keeps its slot with Err set so siblings are never blocked.
type SimulationResult struct {
	PathIndex   int
	Profit      *big.Int
	SlippagePct float64
	IsBest      bool
	Err         error
}

// Ranking is simulation results ordered by descending profit, failures last.
type Ranking []SimulationResult
