package sizer

import (
	"math"
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

// Result is a sizing outcome. "No profitable size" is a sentinel — zero
// amount, zero profit, Feasible false — never an error.
type Result struct {
	Amount   *big.Int
	Profit   *big.Int
	Feasible bool
}

// Params bound the search. Fraction caps the size at that share of the
// limiting reserve so the curve stays inside its approximation-valid
// region; Steps fixes the ternary-search iteration count so latency is
// bounded and results are reproducible.
type Params struct {
	Fraction float64
	Steps    int
}

func DefaultParams() Params {
	return Params{Fraction: 0.30, Steps: 50}
}

// OptimalFlashloan sizes a flashloan-funded two-leg arbitrage: borrow,
// swap through buyPool, swap back through sellPool, repay plus the
// flashloan fee and gas. The profit curve over [0, cap] is single-peaked,
// so a fixed-step ternary search locates the maximizer deterministically.
func OptimalFlashloan(buyPool, sellPool amm.Pool, flashFeeRate float64, gasCost *big.Int) (Result, error) {
	return OptimalFlashloanWith(buyPool, sellPool, flashFeeRate, gasCost, DefaultParams())
}

// OptimalFlashloanV3 is the concentrated-liquidity variant: the same
// contract with the profit function parameterized on liquidity and sqrt
// price instead of plain reserves.
func OptimalFlashloanV3(buyPool, sellPool *amm.ConcentratedPool, flashFeeRate float64, gasCost *big.Int) (Result, error) {
	return OptimalFlashloanWith(buyPool, sellPool, flashFeeRate, gasCost, DefaultParams())
}

func OptimalFlashloanWith(buyPool, sellPool amm.Pool, flashFeeRate float64, gasCost *big.Int, p Params) (Result, error) {
	if err := checkRate(flashFeeRate); err != nil {
		return Result{}, err
	}
	if gasCost == nil || gasCost.Sign() < 0 {
		return Result{}, amm.ErrInvalidInput
	}
	if p.Fraction <= 0 || p.Fraction > 1 || p.Steps <= 0 {
		return Result{}, amm.ErrInvalidInput
	}

	cap := liquidityCap(buyPool, sellPool, p.Fraction)
	if cap.Sign() <= 0 {
		return Result{}, amm.ErrInvalidInput
	}

	feePPM := big.NewInt(int64(math.Round(flashFeeRate * 1_000_000)))

	profitAt := func(size *big.Int) (*big.Int, error) {
		if size.Sign() == 0 {
			return new(big.Int).Neg(gasCost), nil
		}
		bought, err := buyPool.AmountOut(size, 0)
		if err != nil {
			return nil, err
		}
		proceeds, err := sellPool.AmountOut(bought, 0)
		if err != nil {
			return nil, err
		}
		fee := new(big.Int).Mul(size, feePPM)
		fee.Div(fee, big.NewInt(1_000_000))

		profit := new(big.Int).Sub(proceeds, size)
		profit.Sub(profit, fee)
		return profit.Sub(profit, gasCost), nil
	}

	// narrow [left,right] around the peak by probing the 1/3 and 2/3
	// points, keeping the best size seen
	left := big.NewInt(0)
	right := new(big.Int).Set(cap)
	bestSize := big.NewInt(0)
	bestProfit, err := profitAt(bestSize)
	if err != nil {
		return Result{}, err
	}

	three := big.NewInt(3)
	for i := 0; i < p.Steps; i++ {
		span := new(big.Int).Sub(right, left)
		third := span.Div(span, three)
		if third.Sign() == 0 {
			break
		}
		mid1 := new(big.Int).Add(left, third)
		mid2 := new(big.Int).Add(mid1, third)

		profit1, err := profitAt(mid1)
		if err != nil {
			return Result{}, err
		}
		profit2, err := profitAt(mid2)
		if err != nil {
			return Result{}, err
		}

		if profit1.Cmp(bestProfit) > 0 {
			bestProfit, bestSize = profit1, mid1
		}
		if profit2.Cmp(bestProfit) > 0 {
			bestProfit, bestSize = profit2, mid2
		}

		if profit1.Cmp(profit2) > 0 {
			right = mid2
		} else {
			left = mid1
		}
	}

	if bestProfit.Sign() <= 0 || bestSize.Sign() == 0 {
		return infeasible(), nil
	}
	return Result{Amount: bestSize, Profit: bestProfit, Feasible: true}, nil
}

// liquidityCap bounds the search interval at fraction of the limiting
// reserve: the buy side's input reserve or the sell side's output reserve,
// whichever is thinner.
func liquidityCap(buyPool, sellPool amm.Pool, fraction float64) *big.Int {
	limit := buyPool.InReserve()
	if sellOut := sellPool.OutReserve(); sellOut.Cmp(limit) < 0 {
		limit = sellOut
	}
	ppm := big.NewInt(int64(math.Round(fraction * 1_000_000)))
	cap := new(big.Int).Mul(limit, ppm)
	return cap.Div(cap, big.NewInt(1_000_000))
}

func infeasible() Result {
	return Result{Amount: big.NewInt(0), Profit: big.NewInt(0), Feasible: false}
}

func checkRate(rate float64) error {
	if rate < 0 || rate >= 1 || math.IsNaN(rate) {
		return amm.ErrInvalidInput
	}
	return nil
}
