package amm

import (
	"math"
	"math/big"
)

// WeightedPool is a balancer-style pool of N balances with normalized
// weights. In and Out pick which pair of tokens the quote runs across;
// NewWeightedPool defaults them to the first two.
type WeightedPool struct {
	Balances []*big.Int
	Weights  []float64
	In, Out  int
}

func NewWeightedPool(balances []*big.Int, weights []float64) *WeightedPool {
	return &WeightedPool{Balances: balances, Weights: weights, In: 0, Out: 1}
}

func (p *WeightedPool) validate() error {
	if len(p.Balances) < 2 || len(p.Balances) != len(p.Weights) {
		return ErrInvalidInput
	}
	if p.In == p.Out || p.In < 0 || p.Out < 0 || p.In >= len(p.Balances) || p.Out >= len(p.Balances) {
		return ErrInvalidInput
	}
	for i, b := range p.Balances {
		if b == nil || b.Sign() <= 0 {
			return ErrInvalidInput
		}
		if p.Weights[i] <= 0 || math.IsNaN(p.Weights[i]) || math.IsInf(p.Weights[i], 0) {
			return ErrInvalidInput
		}
	}
	return nil
}

// AmountOut uses the weighted constant-product formula
// out = bOut * (1 - (bIn/(bIn+in))^(wIn/wOut)). The depletion factor is
// computed as -expm1(-exp*log1p(in/bIn)): the in/bIn ratio stays
// representable in float64 at any balance magnitude, and the factor scales
// back up against the integer balance in big.Float, so huge reserves never
// round the base to exactly 1 and zero out a real trade.
func (p *WeightedPool) AmountOut(amountIn *big.Int, fee float64) (*big.Int, error) {
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

	netIn := applyFee(amountIn, ppm)
	ratio, _ := new(big.Float).Quo(
		new(big.Float).SetInt(netIn),
		new(big.Float).SetInt(p.Balances[p.In]),
	).Float64()

	exp := p.Weights[p.In] / p.Weights[p.Out]
	factor := -math.Expm1(-exp * math.Log1p(ratio))
	if factor < 0 || math.IsNaN(factor) {
		return nil, ErrNoLiquidity
	}

	outF := new(big.Float).Mul(new(big.Float).SetInt(p.Balances[p.Out]), big.NewFloat(factor))
	res, _ := outF.Int(nil)
	if res.Cmp(p.Balances[p.Out]) >= 0 {
		res.Sub(p.Balances[p.Out], big.NewInt(1))
	}
	return res, nil
}

// AmountIn inverts the weighted formula:
// in = bIn * ((bOut/(bOut-out))^(wOut/wIn) - 1), grossed up for the fee and
// padded so a quoted input cannot round-trip below the requested output.
func (p *WeightedPool) AmountIn(amountOut *big.Int, fee float64) (*big.Int, error) {
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
	if amountOut.Cmp(p.Balances[p.Out]) >= 0 {
		return nil, ErrInfeasible
	}

	// invert for one extra output unit so the flat run AmountOut's floor
	// creates can never let a round trip favor the trader
	target := new(big.Int).Add(amountOut, big.NewInt(1))
	ratio, _ := new(big.Float).Quo(
		new(big.Float).SetInt(target),
		new(big.Float).SetInt(p.Balances[p.Out]),
	).Float64()

	exp := p.Weights[p.Out] / p.Weights[p.In]
	factor := math.Expm1(-exp * math.Log1p(-ratio))
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 0 {
		return nil, ErrInfeasible
	}

	inF := new(big.Float).Mul(new(big.Float).SetInt(p.Balances[p.In]), big.NewFloat(factor))
	res, acc := inF.Int(nil)
	if acc == big.Below {
		res.Add(res, big.NewInt(1))
	}
	res = grossUp(res, ppm)
	// a relative pad covers the float error in the power term
	res.Add(res, new(big.Int).Rsh(res, 40))
	return res.Add(res, big.NewInt(1)), nil
}

// SpotPrice is the weight-adjusted reserve ratio (bOut/wOut)/(bIn/wIn).
func (p *WeightedPool) SpotPrice() (*big.Float, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p.spotAt(p.Balances[p.In], p.Balances[p.Out]), nil
}

func (p *WeightedPool) SpotPriceAfter(amountIn *big.Int, fee float64) (*big.Float, error) {
	out, err := p.AmountOut(amountIn, fee)
	if err != nil {
		return nil, err
	}
	bIn := new(big.Int).Add(p.Balances[p.In], amountIn)
	bOut := new(big.Int).Sub(p.Balances[p.Out], out)
	return p.spotAt(bIn, bOut), nil
}

func (p *WeightedPool) spotAt(bIn, bOut *big.Int) *big.Float {
	num := new(big.Float).Quo(new(big.Float).SetInt(bOut), big.NewFloat(p.Weights[p.Out]))
	den := new(big.Float).Quo(new(big.Float).SetInt(bIn), big.NewFloat(p.Weights[p.In]))
	return num.Quo(num, den)
}

func (p *WeightedPool) InReserve() *big.Int {
	if p.validate() != nil {
		return big.NewInt(0)
	}
	return p.Balances[p.In]
}

func (p *WeightedPool) OutReserve() *big.Int {
	if p.validate() != nil {
		return big.NewInt(0)
	}
	return p.Balances[p.Out]
}
