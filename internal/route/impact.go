package route

import (
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

// MarketImpact is the fractional displacement of the pool's spot price
// caused by a trade of this size, in percent. Zero for a zero-sized trade
// and strictly increasing with trade size.
func MarketImpact(pool amm.Pool, tradeAmount *big.Int, fee float64) (float64, error) {
	if err := checkAmount(tradeAmount); err != nil {
		return 0, err
	}
	if tradeAmount.Sign() == 0 {
		// still surface pool validation errors for bad snapshots
		if _, err := pool.SpotPrice(); err != nil {
			return 0, err
		}
		return 0, nil
	}

	before, err := pool.SpotPrice()
	if err != nil {
		return 0, err
	}
	after, err := pool.SpotPriceAfter(tradeAmount, fee)
	if err != nil {
		return 0, err
	}

	// buying the out token always moves its marginal price down, so the
	// displacement magnitude is before-relative
	return pctBelow(before, after), nil
}
