package amm

import (
	"errors"
	"math"
	"math/big"
)

// Sentinel errors shared by every pool family. "no profitable trade" is NOT
// an error anywhere in this package; only malformed input, an unservable
// request, or a solver that fails to converge produce one.
var (
	ErrInvalidInput = errors.New("amm: invalid input")
	ErrInfeasible   = errors.New("amm: requested output exceeds available reserve")
	ErrNoLiquidity  = errors.New("amm: no liquidity")
	ErrDivergence   = errors.New("amm: iterative solver failed to converge")
)

// A Pool prices one directed hop: amounts of the input token go in, amounts
// of the output token come out. Implementations never mutate their state and
// are safe for concurrent use.
type Pool interface {
	// AmountOut returns the output for an exact input after the fee,
	// rounded down so rounding always favors the pool.
	AmountOut(amountIn *big.Int, fee float64) (*big.Int, error)

	// AmountIn returns the input required for an exact output, rounded up
	// one unit. Returns ErrInfeasible when the pool cannot supply amountOut.
	AmountIn(amountOut *big.Int, fee float64) (*big.Int, error)

	// SpotPrice is the marginal output-per-input price before any trade.
	SpotPrice() (*big.Float, error)

	// SpotPriceAfter is the marginal price once amountIn has been traded.
	SpotPriceAfter(amountIn *big.Int, fee float64) (*big.Float, error)

	// InReserve and OutReserve expose the (possibly virtual) reserves
	// backing each side, used for sizing caps and sanity checks.
	InReserve() *big.Int
	OutReserve() *big.Int
}

const ppmScale = 1_000_000

var ppmScaleBig = big.NewInt(ppmScale)

// feePPM converts a fractional fee rate to parts-per-million so reserve math
// stays in integers, the way uniswap's 997/1000 factor does for 0.3%.
func feePPM(fee float64) (int64, error) {
	if fee < 0 || fee >= 1 || math.IsNaN(fee) {
		return 0, ErrInvalidInput
	}
	ppm := int64(math.Round(fee * ppmScale))
	if ppm >= ppmScale {
		// a fee this close to 1 rounds to the whole scale and would zero
		// the kept fraction
		return 0, ErrInvalidInput
	}
	return ppm, nil
}

// applyFee returns amount*(1-fee) rounded down.
func applyFee(amount *big.Int, ppm int64) *big.Int {
	kept := new(big.Int).Mul(amount, big.NewInt(ppmScale-ppm))
	return kept.Div(kept, ppmScaleBig)
}

// grossUp returns the pre-fee amount that nets to amount after the fee,
// rounded up.
func grossUp(amount *big.Int, ppm int64) *big.Int {
	num := new(big.Int).Mul(amount, ppmScaleBig)
	den := big.NewInt(ppmScale - ppm)
	return ceilDiv(num, den)
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidInput
	}
	return nil
}
