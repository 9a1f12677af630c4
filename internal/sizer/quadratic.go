package sizer

import (
	"errors"
	"math"
	"math/big"

	"github.com/arbmath/arb-engine/internal/amm"
)

var ErrNoRealRoot = errors.New("sizer: no real root")

// SolveQuadratic returns the real roots of a*x^2 + b*x + c = 0 in
// ascending order. a == 0 degrades to the linear solve; a negative
// discriminant is ErrNoRealRoot.
func SolveQuadratic(a, b, c float64) (float64, float64, error) {
	if a == 0 {
		if b == 0 {
			return 0, 0, amm.ErrInvalidInput
		}
		x := -c / b
		return x, x, nil
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, 0, ErrNoRealRoot
	}
	sq := math.Sqrt(disc)
	x1 := (-b - sq) / (2 * a)
	x2 := (-b + sq) / (2 * a)
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	return x1, x2, nil
}

// QuadraticTradeSize is the fast-path sizer: it approximates the two-leg
// profit curve by its second-order expansion around zero,
//
//	profit(x) ~ (roundTrip - 1 - fee)*x - k*x^2 - gas
//
// and takes the vertex x* = -b/2a, clamped to the liquidity cap. Valid for
// small sizes only; OptimalFlashloan is the precision path when the answer
// matters.
func QuadraticTradeSize(buyPool, sellPool amm.Pool, gasCost *big.Int, feeRate float64) (Result, error) {
	if err := checkRate(feeRate); err != nil {
		return Result{}, err
	}
	if gasCost == nil || gasCost.Sign() < 0 {
		return Result{}, amm.ErrInvalidInput
	}

	buySpotF, err := spotFloat(buyPool)
	if err != nil {
		return Result{}, err
	}
	sellSpotF, err := spotFloat(sellPool)
	if err != nil {
		return Result{}, err
	}

	roundTrip := buySpotF * sellSpotF
	linear := roundTrip - 1 - feeRate
	if linear <= 0 {
		return infeasible(), nil
	}

	buyIn := bigFloat(buyPool.InReserve())
	sellIn := bigFloat(sellPool.InReserve())
	if buyIn <= 0 || sellIn <= 0 {
		return Result{}, amm.ErrInvalidInput
	}

	// curvature of the expanded round trip: depth of the buy leg plus the
	// (price-scaled) depth of the sell leg
	k := roundTrip * (1/buyIn + buySpotF/sellIn)

	vertex := linear / (2 * k)
	capF := bigFloat(liquidityCap(buyPool, sellPool, DefaultParams().Fraction))
	if vertex > capF {
		vertex = capF
	}
	if vertex <= 0 {
		return infeasible(), nil
	}

	gas := bigFloat(gasCost)
	profit := linear*vertex - k*vertex*vertex - gas
	if profit <= 0 {
		return infeasible(), nil
	}

	amount, _ := new(big.Float).SetFloat64(vertex).Int(nil)
	profitInt, _ := new(big.Float).SetFloat64(profit).Int(nil)
	return Result{Amount: amount, Profit: profitInt, Feasible: true}, nil
}

func spotFloat(pool amm.Pool) (float64, error) {
	spot, err := pool.SpotPrice()
	if err != nil {
		return 0, err
	}
	v, _ := spot.Float64()
	return v, nil
}

func bigFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
