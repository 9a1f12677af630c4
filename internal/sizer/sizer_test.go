package sizer

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbmath/arb-engine/internal/amm"
)

func cp(rin, rout int64) *amm.ConstantProductPool {
	return &amm.ConstantProductPool{ReserveIn: big.NewInt(rin), ReserveOut: big.NewInt(rout)}
}

// two equally priced pools leave nothing to extract
func TestOptimalFlashloanNoArbitrage(t *testing.T) {
	buy := cp(1_000_000, 1_000_000)
	sell := cp(1_000_000, 1_000_000)

	res, err := OptimalFlashloan(buy, sell, 0.0009, big.NewInt(100))
	require.NoError(t, err)
	assert.False(t, res.Feasible)
	assert.Zero(t, res.Amount.Sign())
	assert.Zero(t, res.Profit.Sign())
}

func TestOptimalFlashloanSpread(t *testing.T) {
	buy := cp(1_000_000, 2_000_000)
	sell := cp(1_800_000, 1_000_000)
	gas := big.NewInt(100)

	res, err := OptimalFlashloan(buy, sell, 0.0009, gas)
	require.NoError(t, err)
	require.True(t, res.Feasible)
	assert.Positive(t, res.Amount.Sign())
	assert.Positive(t, res.Profit.Sign())

	// stays under the 30% cap of the limiting reserve
	cap := big.NewInt(300_000)
	assert.Negative(t, res.Amount.Cmp(cap))

	// the found size is near the true peak of the profit curve
	assert.Greater(t, res.Amount.Int64(), int64(20_000))
	assert.Less(t, res.Amount.Int64(), int64(30_000))

	// reported profit is the profit of the reported size
	check := profitOf(t, buy, sell, res.Amount, 0.0009, gas)
	assert.Equal(t, check.String(), res.Profit.String())

	// and beats naive nearby sizes
	for _, off := range []int64{-5_000, 5_000} {
		size := new(big.Int).Add(res.Amount, big.NewInt(off))
		assert.LessOrEqual(t, profitOf(t, buy, sell, size, 0.0009, gas).Cmp(res.Profit), 0)
	}
}

func TestOptimalFlashloanClampsToCap(t *testing.T) {
	// spread so wide the unconstrained maximizer sits past the cap
	buy := cp(1_000_000, 10_000_000_000)
	sell := cp(10_000_000_000, 9_000_000_000)

	res, err := OptimalFlashloan(buy, sell, 0.0009, big.NewInt(100))
	require.NoError(t, err)
	require.True(t, res.Feasible)

	cap := int64(300_000) // 0.3 * buy reserveIn
	assert.LessOrEqual(t, res.Amount.Int64(), cap)
	assert.Greater(t, res.Amount.Int64(), cap*95/100, "search should push against the cap")
}

func TestOptimalFlashloanGasDominates(t *testing.T) {
	buy := cp(1_000_000, 2_000_000)
	sell := cp(1_800_000, 1_000_000)

	res, err := OptimalFlashloan(buy, sell, 0.0009, big.NewInt(10_000_000))
	require.NoError(t, err)
	assert.False(t, res.Feasible)
}

func TestOptimalFlashloanDeterminism(t *testing.T) {
	buy := cp(1_234_567, 2_765_432)
	sell := cp(2_500_000, 1_111_111)

	first, err := OptimalFlashloan(buy, sell, 0.0009, big.NewInt(137))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := OptimalFlashloan(buy, sell, 0.0009, big.NewInt(137))
		require.NoError(t, err)
		assert.Equal(t, first.Amount.String(), again.Amount.String())
		assert.Equal(t, first.Profit.String(), again.Profit.String())
	}
}

func TestOptimalFlashloanInvalidArgs(t *testing.T) {
	buy := cp(1_000_000, 2_000_000)
	sell := cp(1_800_000, 1_000_000)

	_, err := OptimalFlashloan(buy, sell, -0.1, big.NewInt(100))
	assert.ErrorIs(t, err, amm.ErrInvalidInput)

	_, err = OptimalFlashloan(buy, sell, 0.0009, nil)
	assert.ErrorIs(t, err, amm.ErrInvalidInput)

	_, err = OptimalFlashloanWith(buy, sell, 0.0009, big.NewInt(100), Params{Fraction: 0, Steps: 50})
	assert.ErrorIs(t, err, amm.ErrInvalidInput)
}

func TestOptimalFlashloanV3(t *testing.T) {
	// price 2.0 on the buy side, 1/1.8 back on the sell side
	sqrt2 := new(big.Int).Sqrt(new(big.Int).Lsh(big.NewInt(2), 192))
	sqrtBack := new(big.Int).Sqrt(new(big.Int).Div(new(big.Int).Lsh(big.NewInt(10), 192), big.NewInt(18)))

	buy := &amm.ConcentratedPool{
		Liquidity:    uint256.NewInt(3_000_000),
		SqrtPriceX96: uint256.MustFromBig(sqrt2),
	}
	sell := &amm.ConcentratedPool{
		Liquidity:    uint256.NewInt(3_000_000),
		SqrtPriceX96: uint256.MustFromBig(sqrtBack),
	}

	res, err := OptimalFlashloanV3(buy, sell, 0.0009, big.NewInt(100))
	require.NoError(t, err)
	require.True(t, res.Feasible)
	assert.Positive(t, res.Amount.Sign())
	assert.Positive(t, res.Profit.Sign())
}

func TestSolveQuadratic(t *testing.T) {
	x1, x2, err := SolveQuadratic(1, -5, 6)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, x1, 1e-12)
	assert.InDelta(t, 3.0, x2, 1e-12)

	_, _, err = SolveQuadratic(1, 0, 1)
	assert.ErrorIs(t, err, ErrNoRealRoot)

	// linear degradation
	x1, x2, err = SolveQuadratic(0, 2, -4)
	require.NoError(t, err)
	assert.Equal(t, x1, x2)
	assert.InDelta(t, 2.0, x1, 1e-12)

	_, _, err = SolveQuadratic(0, 0, 1)
	assert.ErrorIs(t, err, amm.ErrInvalidInput)
}

func TestQuadraticTradeSizeTracksExactSearch(t *testing.T) {
	buy := cp(1_000_000, 2_000_000)
	sell := cp(1_800_000, 1_000_000)
	gas := big.NewInt(100)

	fast, err := QuadraticTradeSize(buy, sell, gas, 0.0009)
	require.NoError(t, err)
	require.True(t, fast.Feasible)

	exact, err := OptimalFlashloan(buy, sell, 0.0009, gas)
	require.NoError(t, err)
	require.True(t, exact.Feasible)

	// the linearized vertex lands in the neighborhood of the true peak
	ratio := float64(fast.Amount.Int64()) / float64(exact.Amount.Int64())
	assert.Greater(t, ratio, 0.7)
	assert.Less(t, ratio, 1.3)
}

func TestQuadraticTradeSizeNoEdge(t *testing.T) {
	res, err := QuadraticTradeSize(cp(1_000_000, 1_000_000), cp(1_000_000, 1_000_000), big.NewInt(100), 0.0009)
	require.NoError(t, err)
	assert.False(t, res.Feasible)
}

func profitOf(t *testing.T, buy, sell amm.Pool, size *big.Int, feeRate float64, gas *big.Int) *big.Int {
	t.Helper()
	bought, err := buy.AmountOut(size, 0)
	require.NoError(t, err)
	proceeds, err := sell.AmountOut(bought, 0)
	require.NoError(t, err)

	fee := new(big.Int).Mul(size, big.NewInt(900)) // 0.0009 in ppm
	fee.Div(fee, big.NewInt(1_000_000))
	profit := new(big.Int).Sub(proceeds, size)
	profit.Sub(profit, fee)
	return profit.Sub(profit, gas)
}
