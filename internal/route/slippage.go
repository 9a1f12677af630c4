package route

import (
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

// SlippagePct is the relative gap between a pool's spot price and the
// effective price of a trade of this size, in percent. Never negative.
func SlippagePct(pool amm.Pool, amountIn *big.Int, fee float64) (float64, error) {
	if err := checkAmount(amountIn); err != nil {
		return 0, err
	}
	if amountIn.Sign() == 0 {
		return 0, nil
	}

	spot, err := pool.SpotPrice()
	if err != nil {
		return 0, err
	}
	out, err := pool.AmountOut(amountIn, fee)
	if err != nil {
		return 0, err
	}

	effective := new(big.Float).Quo(new(big.Float).SetInt(out), new(big.Float).SetInt(amountIn))
	return pctBelow(spot, effective), nil
}

// PathSlippage walks the hops in order, feeding each hop's output into the
// next, and returns the cumulative loss versus frictionless execution at
// every hop's spot price. Hops compound multiplicatively, not additively.
func PathSlippage(path Path, amountIn *big.Int) (float64, error) {
	if len(path) == 0 {
		return 0, amm.ErrInvalidInput
	}
	if err := checkAmount(amountIn); err != nil {
		return 0, err
	}
	if amountIn.Sign() == 0 {
		return 0, nil
	}

	frictionless := new(big.Float).SetInt(amountIn)
	amount := new(big.Int).Set(amountIn)

	for _, leg := range path {
		spot, err := leg.Pool.SpotPrice()
		if err != nil {
			return 0, err
		}
		frictionless.Mul(frictionless, spot)

		amount, err = leg.Pool.AmountOut(amount, leg.Fee)
		if err != nil {
			return 0, err
		}
	}

	actual := new(big.Float).SetInt(amount)
	return pctBelow(frictionless, actual), nil
}

// MinSlippageRoute picks the quote with the least slippage; ties go to the
// larger absolute output.
func MinSlippageRoute(quotes []Quote) (int, error) {
	if len(quotes) == 0 {
		return 0, amm.ErrInvalidInput
	}

	best := 0
	for i := 1; i < len(quotes); i++ {
		switch {
		case quotes[i].SlippagePct < quotes[best].SlippagePct:
			best = i
		case quotes[i].SlippagePct == quotes[best].SlippagePct &&
			quotes[i].AmountOut != nil && quotes[best].AmountOut != nil &&
			quotes[i].AmountOut.Cmp(quotes[best].AmountOut) > 0:
			best = i
		}
	}
	return best, nil
}

// pctBelow returns how far actual sits under reference, in percent,
// clamped at zero.
func pctBelow(reference, actual *big.Float) float64 {
	if reference.Sign() <= 0 {
		return 0
	}
	gap := new(big.Float).Sub(reference, actual)
	gap.Quo(gap, reference)
	gap.Mul(gap, big.NewFloat(100))
	v, _ := gap.Float64()
	if v < 0 {
		return 0
	}
	return v
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return amm.ErrInvalidInput
	}
	return nil
}
