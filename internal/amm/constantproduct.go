package amm

import "math/big"

// ConstantProductPool is a uniswap-v2 style x*y=k pool, quoted in one
// direction: ReserveIn backs the token being sold to the pool, ReserveOut
// the token bought from it.
type ConstantProductPool struct {
	ReserveIn  *big.Int
	ReserveOut *big.Int
}

func (p *ConstantProductPool) validate() error {
	if p.ReserveIn == nil || p.ReserveOut == nil {
		return ErrInvalidInput
	}
	if p.ReserveIn.Sign() <= 0 || p.ReserveOut.Sign() <= 0 {
		return ErrInvalidInput
	}
	return nil
}

// AmountOut applies the constant product formula
// out = reserveOut*in*(1-fee) / (reserveIn + in*(1-fee)), rounded down.
func (p *ConstantProductPool) AmountOut(amountIn *big.Int, fee float64) (*big.Int, error) {
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

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(ppmScale-ppm))
	numerator := new(big.Int).Mul(inWithFee, p.ReserveOut)
	denominator := new(big.Int).Mul(p.ReserveIn, ppmScaleBig)
	denominator.Add(denominator, inWithFee)

	return numerator.Div(numerator, denominator), nil
}

// AmountIn inverts AmountOut and rounds up one unit so the round trip never
// favors the trader.
func (p *ConstantProductPool) AmountIn(amountOut *big.Int, fee float64) (*big.Int, error) {
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
	if amountOut.Cmp(p.ReserveOut) >= 0 {
		return nil, ErrInfeasible
	}

	numerator := new(big.Int).Mul(p.ReserveIn, amountOut)
	numerator.Mul(numerator, ppmScaleBig)
	denominator := new(big.Int).Sub(p.ReserveOut, amountOut)
	denominator.Mul(denominator, big.NewInt(ppmScale-ppm))

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

func (p *ConstantProductPool) SpotPrice() (*big.Float, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	rin := new(big.Float).SetInt(p.ReserveIn)
	rout := new(big.Float).SetInt(p.ReserveOut)
	return new(big.Float).Quo(rout, rin), nil
}

func (p *ConstantProductPool) SpotPriceAfter(amountIn *big.Int, fee float64) (*big.Float, error) {
	out, err := p.AmountOut(amountIn, fee)
	if err != nil {
		return nil, err
	}
	rin := new(big.Float).SetInt(new(big.Int).Add(p.ReserveIn, amountIn))
	rout := new(big.Float).SetInt(new(big.Int).Sub(p.ReserveOut, out))
	return new(big.Float).Quo(rout, rin), nil
}

func (p *ConstantProductPool) InReserve() *big.Int  { return p.ReserveIn }
func (p *ConstantProductPool) OutReserve() *big.Int { return p.ReserveOut }
