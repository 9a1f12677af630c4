package amm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Q96 fixed-point scale used by concentrated-liquidity sqrt prices.
var (
	q96    = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	q96Big = new(big.Int).Lsh(big.NewInt(1), 96)
)

// ConcentratedPool is a uniswap-v3 style pool reduced to its in-range state:
// active liquidity plus the current sqrt price in Q96. The quote direction is
// token0 in, token1 out, so swaps move the sqrt price down. Tick crossing is
// out of reach here because the snapshot carries no tick data; trades are
// priced within the active range only.
type ConcentratedPool struct {
	Liquidity    *uint256.Int
	SqrtPriceX96 *uint256.Int
}

func (p *ConcentratedPool) validate() error {
	if p.Liquidity == nil || p.SqrtPriceX96 == nil {
		return ErrInvalidInput
	}
	if p.Liquidity.IsZero() || p.SqrtPriceX96.IsZero() {
		return ErrNoLiquidity
	}
	return nil
}

// nextSqrtPrice returns the sqrt price after an exact token0 input:
// sqrtP' = L*sqrtP*Q96 / (L*Q96 + in*sqrtP). Full-width intermediates run in
// big.Int; the result is checked back into 256 bits.
func (p *ConcentratedPool) nextSqrtPrice(amountIn *big.Int) (*uint256.Int, error) {
	liq := p.Liquidity.ToBig()
	sqrtP := p.SqrtPriceX96.ToBig()

	numerator := new(big.Int).Mul(liq, sqrtP)
	numerator.Mul(numerator, q96Big)
	denominator := new(big.Int).Mul(liq, q96Big)
	denominator.Add(denominator, new(big.Int).Mul(amountIn, sqrtP))

	next, overflow := uint256.FromBig(numerator.Div(numerator, denominator))
	if overflow || next.IsZero() {
		return nil, ErrNoLiquidity
	}
	return next, nil
}

// AmountOut prices an exact token0 input within the active range:
// out = L * (sqrtP - sqrtP') / Q96.
func (p *ConcentratedPool) AmountOut(amountIn *big.Int, fee float64) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := validAmount(amountIn); err != nil {
		return nil, err
	}
	ppm, err := feePPM(fee)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if _, overflow := uint256.FromBig(amountIn); overflow {
		// trade too large for 256-bit pool arithmetic
		return nil, ErrNoLiquidity
	}

	next, err := p.nextSqrtPrice(applyFee(amountIn, ppm))
	if err != nil {
		return nil, err
	}

	delta := new(big.Int).Sub(p.SqrtPriceX96.ToBig(), next.ToBig())
	out := new(big.Int).Mul(p.Liquidity.ToBig(), delta)
	return out.Div(out, q96Big), nil
}

// AmountIn solves for the token0 input producing an exact token1 output,
// rounded up one unit.
func (p *ConcentratedPool) AmountIn(amountOut *big.Int, fee float64) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := validAmount(amountOut); err != nil {
		return nil, err
	}
	ppm, err := feePPM(fee)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if amountOut.Cmp(p.OutReserve()) >= 0 {
		return nil, ErrInfeasible
	}

	sqrtP := p.SqrtPriceX96.ToBig()
	liq := p.Liquidity.ToBig()

	// sqrtP' = sqrtP - out*Q96/L; infeasible once the price would hit zero
	drop := new(big.Int).Mul(amountOut, q96Big)
	drop = ceilDiv(drop, liq)
	next := new(big.Int).Sub(sqrtP, drop)
	if next.Sign() <= 0 {
		return nil, ErrInfeasible
	}

	// in = L * (sqrtP - sqrtP') * Q96 / (sqrtP * sqrtP'), rounded up
	numerator := new(big.Int).Mul(liq, new(big.Int).Sub(sqrtP, next))
	numerator.Mul(numerator, q96Big)
	denominator := new(big.Int).Mul(sqrtP, next)
	amountIn := ceilDiv(numerator, denominator)

	amountIn = grossUp(amountIn, ppm)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// SpotPrice is (sqrtP/Q96)^2, token1 per token0.
func (p *ConcentratedPool) SpotPrice() (*big.Float, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return sqrtToPrice(p.SqrtPriceX96.ToBig()), nil
}

func (p *ConcentratedPool) SpotPriceAfter(amountIn *big.Int, fee float64) (*big.Float, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := validAmount(amountIn); err != nil {
		return nil, err
	}
	ppm, err := feePPM(fee)
	if err != nil {
		return nil, err
	}
	next, err := p.nextSqrtPrice(applyFee(amountIn, ppm))
	if err != nil {
		return nil, err
	}
	return sqrtToPrice(next.ToBig()), nil
}

// InReserve and OutReserve are the virtual reserves implied by the active
// range: x = L*Q96/sqrtP, y = L*sqrtP/Q96.
func (p *ConcentratedPool) InReserve() *big.Int {
	if p.validate() != nil {
		return big.NewInt(0)
	}
	r := new(big.Int).Mul(p.Liquidity.ToBig(), q96Big)
	return r.Div(r, p.SqrtPriceX96.ToBig())
}

func (p *ConcentratedPool) OutReserve() *big.Int {
	if p.validate() != nil {
		return big.NewInt(0)
	}
	r := new(big.Int).Mul(p.Liquidity.ToBig(), p.SqrtPriceX96.ToBig())
	return r.Div(r, q96Big)
}

func sqrtToPrice(sqrtX96 *big.Int) *big.Float {
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtX96), new(big.Float).SetInt(q96Big))
	return ratio.Mul(ratio, ratio)
}
