package engine

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/arbmath/arb-engine/internal/amm"
	"github.com/arbmath/arb-engine/internal/sizer"
	"github.com/arbmath/arb-engine/internal/twap"
)

// State is one step of the evaluation pipeline.
type State int

const (
	StateIdle State = iota
	StatePriceComputed
	StateOpportunityIdentified
	StateSizeOptimized
	StateTWAPValidated
	StateProfitEstimated
	StateDecided
	// StateRejected is terminal: once entered, no later step runs.
	StateRejected
)

var stateNames = map[State]string{
	StateIdle:                  "idle",
	StatePriceComputed:         "price_computed",
	StateOpportunityIdentified: "opportunity_identified",
	StateSizeOptimized:         "size_optimized",
	StateTWAPValidated:         "twap_validated",
	StateProfitEstimated:       "profit_estimated",
	StateDecided:               "decided",
	StateRejected:              "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Thresholds gate each stage of the pipeline.
type Thresholds struct {
	// MinPriceDiffPct is the smallest cross-venue spread worth pursuing.
	MinPriceDiffPct float64
	// MaxTWAPDeviationPct rejects spot prices that stray too far from the
	// time-weighted average, a sign of in-block manipulation.
	MaxTWAPDeviationPct float64
	// MinProfit is the floor on expected profit after fees and gas.
	MinProfit *big.Int
	// MaxSizeFraction caps the flashloan at a fraction of pool liquidity.
	MaxSizeFraction float64
	// FlashloanFeeRate is the lender's fee, e.g. 0.0009 for Aave.
	FlashloanFeeRate float64
	// GasCost is the estimated execution cost in output token units.
	GasCost *big.Int
}

// Input is one candidate pair evaluation: two pools quoting the same pair
// in opposite directions, plus recent price history for the pair. History
// prices share the Buy pool's orientation. Pools are directed, so a spread
// favoring the flipped orientation cannot be sized from this input; feed
// the flipped pools as their own candidate, the way the replay's
// both-orientations snapshot convention does.
type Input struct {
	Buy     amm.Pool
	Sell    amm.Pool
	History []twap.Sample
}

// Decision is the terminal output of a full pipeline run. A reverse
// Direction means the spread favors the flipped orientation; such inputs
// are rejected here and should be re-evaluated with the flipped pools.
type Decision struct {
	Execute      bool
	Amount       *big.Int
	Profit       *big.Int
	FinalState   State
	Reason       string
	PriceDiffPct float64
	Direction    Direction
	Trace        []State
}

// Coordinator drives a candidate through price comparison, sizing, TWAP
// validation and profit gating. It holds no per-evaluation state and is
// safe for concurrent use.
type Coordinator struct {
	thresholds Thresholds
	logger     *zap.Logger
}

// NewCoordinator builds a coordinator. A nil logger disables logging.
func NewCoordinator(thresholds Thresholds, logger *zap.Logger) (*Coordinator, error) {
	if thresholds.MinPriceDiffPct < 0 || thresholds.MaxTWAPDeviationPct < 0 {
		return nil, fmt.Errorf("negative threshold: %w", amm.ErrInvalidInput)
	}
	if thresholds.MaxSizeFraction <= 0 || thresholds.MaxSizeFraction > 1 {
		return nil, fmt.Errorf("size fraction %v out of (0, 1]: %w", thresholds.MaxSizeFraction, amm.ErrInvalidInput)
	}
	if thresholds.MinProfit == nil || thresholds.MinProfit.Sign() < 0 {
		return nil, fmt.Errorf("min profit must be a non-negative integer: %w", amm.ErrInvalidInput)
	}
	if thresholds.GasCost == nil || thresholds.GasCost.Sign() < 0 {
		return nil, fmt.Errorf("gas cost must be a non-negative integer: %w", amm.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{thresholds: thresholds, logger: logger}, nil
}

// Evaluate runs one candidate through the full pipeline. Rejections are
// normal outcomes reported in the Decision; errors mean the inputs were
// unusable.
func (c *Coordinator) Evaluate(in Input) (Decision, error) {
	d := Decision{FinalState: StateIdle, Trace: []State{StateIdle}}
	if in.Buy == nil || in.Sell == nil {
		return d, fmt.Errorf("both pools are required: %w", amm.ErrInvalidInput)
	}

	buySpot, err := in.Buy.SpotPrice()
	if err != nil {
		return d, fmt.Errorf("buy spot price: %w", err)
	}
	if _, err := in.Sell.SpotPrice(); err != nil {
		return d, fmt.Errorf("sell spot price: %w", err)
	}
	c.advance(&d, StatePriceComputed)

	opp, err := FindOpportunity(in.Buy, in.Sell, c.thresholds.MinPriceDiffPct)
	if err != nil {
		return d, fmt.Errorf("compare venues: %w", err)
	}
	d.PriceDiffPct = opp.PriceDiffPct
	d.Direction = opp.Direction
	if !opp.Found {
		return c.reject(d, fmt.Sprintf("spread %.4f%% below %.4f%% threshold", opp.PriceDiffPct, c.thresholds.MinPriceDiffPct)), nil
	}
	c.advance(&d, StateOpportunityIdentified)
	c.logger.Debug("opportunity identified",
		zap.Float64("price_diff_pct", opp.PriceDiffPct),
		zap.String("direction", opp.Direction.String()))

	// a reverse spread is only tradable through the flipped pools, which
	// this input does not carry; no size in this orientation can profit
	if opp.Direction == DirectionReverse {
		return c.reject(d, "spread runs against this orientation; evaluate the flipped pools"), nil
	}

	size, err := sizer.OptimalFlashloanWith(in.Buy, in.Sell,
		c.thresholds.FlashloanFeeRate, c.thresholds.GasCost,
		sizer.Params{Fraction: c.thresholds.MaxSizeFraction, Steps: sizer.DefaultParams().Steps})
	if err != nil {
		return d, fmt.Errorf("size flashloan: %w", err)
	}
	if !size.Feasible {
		return c.reject(d, "no flashloan size clears fees and gas"), nil
	}
	d.Amount = size.Amount
	c.advance(&d, StateSizeOptimized)

	average, err := twap.TWAP(in.History)
	if err != nil {
		return d, fmt.Errorf("price history: %w", err)
	}
	spot, _ := buySpot.Float64()
	deviation := twap.Deviation(spot, average)
	if deviation > c.thresholds.MaxTWAPDeviationPct {
		return c.reject(d, fmt.Sprintf("spot deviates %.4f%% from TWAP, max %.4f%%", deviation, c.thresholds.MaxTWAPDeviationPct)), nil
	}
	c.advance(&d, StateTWAPValidated)

	if size.Profit.Cmp(c.thresholds.MinProfit) < 0 {
		return c.reject(d, fmt.Sprintf("profit %s below minimum %s", size.Profit, c.thresholds.MinProfit)), nil
	}
	d.Profit = size.Profit
	c.advance(&d, StateProfitEstimated)

	d.Execute = true
	d.Reason = "all gates passed"
	c.advance(&d, StateDecided)
	c.logger.Info("execute decision",
		zap.String("amount", d.Amount.String()),
		zap.String("profit", d.Profit.String()),
		zap.Float64("price_diff_pct", d.PriceDiffPct))
	return d, nil
}

func (c *Coordinator) advance(d *Decision, next State) {
	d.FinalState = next
	d.Trace = append(d.Trace, next)
}

func (c *Coordinator) reject(d Decision, reason string) Decision {
	d.FinalState = StateRejected
	d.Trace = append(d.Trace, StateRejected)
	d.Reason = reason
	c.logger.Debug("candidate rejected", zap.String("reason", reason))
	return d
}
