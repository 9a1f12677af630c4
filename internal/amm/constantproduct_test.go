package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpPool(rin, rout int64) *ConstantProductPool {
	return &ConstantProductPool{ReserveIn: big.NewInt(rin), ReserveOut: big.NewInt(rout)}
}

func TestConstantProductAmountOut(t *testing.T) {
	pool := cpPool(1_000_000, 2_000_000)

	out, err := pool.AmountOut(big.NewInt(25_000), 0.003)
	require.NoError(t, err)

	// 0.3% in ppm is exactly the classic 997/1000 factor
	inWithFee := new(big.Int).Mul(big.NewInt(25_000), big.NewInt(997))
	num := new(big.Int).Mul(inWithFee, big.NewInt(2_000_000))
	den := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1000))
	den.Add(den, inWithFee)
	want := num.Div(num, den)

	assert.Equal(t, want.String(), out.String())
	assert.Equal(t, -1, out.Cmp(pool.ReserveOut), "output must stay below the reserve")
}

func TestConstantProductZeroAmounts(t *testing.T) {
	pool := cpPool(1_000_000, 2_000_000)

	out, err := pool.AmountOut(big.NewInt(0), 0.003)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())

	in, err := pool.AmountIn(big.NewInt(0), 0.003)
	require.NoError(t, err)
	assert.Zero(t, in.Sign())
}

func TestConstantProductInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		pool *ConstantProductPool
		in   *big.Int
		fee  float64
	}{
		{"zero reserve in", cpPool(0, 2_000_000), big.NewInt(100), 0.003},
		{"zero reserve out", cpPool(1_000_000, 0), big.NewInt(100), 0.003},
		{"negative amount", cpPool(1_000_000, 2_000_000), big.NewInt(-5), 0.003},
		{"nil amount", cpPool(1_000_000, 2_000_000), nil, 0.003},
		{"fee out of range", cpPool(1_000_000, 2_000_000), big.NewInt(100), 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.pool.AmountOut(tc.in, tc.fee)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestConstantProductInfeasibleOutput(t *testing.T) {
	pool := cpPool(1_000_000, 2_000_000)

	_, err := pool.AmountIn(big.NewInt(2_000_000), 0.003)
	assert.ErrorIs(t, err, ErrInfeasible)

	_, err = pool.AmountIn(big.NewInt(3_000_000), 0)
	assert.ErrorIs(t, err, ErrInfeasible)
}

// fee plus rounding must never favor the trader on a round trip.
func TestConstantProductRoundTrip(t *testing.T) {
	pool := cpPool(1_000_000, 2_000_000)

	for _, x := range []int64{1, 17, 1000, 25_000, 400_000} {
		out, err := pool.AmountOut(big.NewInt(x), 0.003)
		require.NoError(t, err)
		if out.Sign() == 0 {
			continue
		}
		back, err := pool.AmountIn(out, 0.003)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, back.Cmp(big.NewInt(x)), 0, "round trip of %d", x)
	}
}

func TestConstantProductSpotPrice(t *testing.T) {
	pool := cpPool(1_000_000, 2_000_000)

	spot, err := pool.SpotPrice()
	require.NoError(t, err)
	v, _ := spot.Float64()
	assert.InDelta(t, 2.0, v, 1e-12)

	after, err := pool.SpotPriceAfter(big.NewInt(100_000), 0)
	require.NoError(t, err)
	av, _ := after.Float64()
	assert.Less(t, av, v, "buying the out token must move its price down")
}

func TestConstantProductDeterminism(t *testing.T) {
	pool := cpPool(123_456_789, 987_654_321)
	first, err := pool.AmountOut(big.NewInt(54_321), 0.0025)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := pool.AmountOut(big.NewInt(54_321), 0.0025)
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
	}
}
