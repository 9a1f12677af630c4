package backtest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/arbmath/arb-engine/internal/engine"
	"github.com/arbmath/arb-engine/internal/registry"
	"github.com/arbmath/arb-engine/internal/twap"
)

// Runner replays recorded pool snapshots block by block, feeding each
// block's state through the decision pipeline and collecting outcomes.
type Runner struct {
	registry *registry.Registry
	coord    *engine.Coordinator
	store    *ResultDB
	logger   *zap.Logger
}

// Report aggregates outcomes across a replay.
type Report struct {
	StartBlock      uint64
	EndBlock        uint64
	BlocksProcessed int
	Evaluations     int
	Executions      int
	Rejections      int
	Errors          int
	TotalProfit     *big.Int
	BestBlock       uint64
	BestProfit      *big.Int
}

// HitRate is the share of evaluations that ended in an execute decision.
func (r *Report) HitRate() float64 {
	if r.Evaluations == 0 {
		return 0
	}
	return float64(r.Executions) / float64(r.Evaluations)
}

// NewRunner builds a replay runner. The store may be nil to skip
// persistence; a nil logger disables logging.
func NewRunner(thresholds engine.Thresholds, historyDepth int, store *ResultDB, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	coord, err := engine.NewCoordinator(thresholds, logger)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	reg, err := registry.New(1024, historyDepth)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return &Runner{registry: reg, coord: coord, store: store, logger: logger}, nil
}

// Run replays records in block order. Snapshot files store each venue in
// both orientations, so a pair name and its reverse together describe a
// full cycle.
func (r *Runner) Run(ctx context.Context, records []SnapshotRecord) (*Report, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to replay")
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Block < records[j].Block
	})

	report := &Report{
		StartBlock:  uint64(records[0].Block),
		EndBlock:    uint64(records[len(records)-1].Block),
		TotalProfit: big.NewInt(0),
		BestProfit:  big.NewInt(0),
	}

	for start := 0; start < len(records); {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		end := start
		block := records[start].Block
		for end < len(records) && records[end].Block == block {
			end++
		}
		if err := r.processBlock(uint64(block), records[start:end], report); err != nil {
			return report, err
		}
		report.BlocksProcessed++
		start = end
	}

	r.logger.Info("replay finished",
		zap.Uint64("start_block", report.StartBlock),
		zap.Uint64("end_block", report.EndBlock),
		zap.Int("evaluations", report.Evaluations),
		zap.Int("executions", report.Executions),
		zap.String("total_profit", report.TotalProfit.String()))
	return report, nil
}

func (r *Runner) processBlock(block uint64, records []SnapshotRecord, report *Report) error {
	type pairKey struct {
		chain uint64
		pair  string
	}
	seen := make(map[pairKey]bool)

	for i := range records {
		rec := &records[i]
		snap, err := rec.Snapshot()
		if err != nil {
			r.logger.Warn("bad snapshot record",
				zap.Uint64("block", block), zap.String("address", rec.Address), zap.Error(err))
			report.Errors++
			continue
		}
		if err := r.registry.Put(rec.Key(), snap); err != nil {
			report.Errors++
			continue
		}
		seen[pairKey{chain: uint64(rec.Chain), pair: rec.Pair}] = true
	}

	for pk := range seen {
		reversed, ok := reversePair(pk.pair)
		if !ok {
			continue
		}
		buyKeys := r.registry.Keys(pk.chain, pk.pair)
		sellKeys := r.registry.Keys(pk.chain, reversed)
		if len(buyKeys) == 0 || len(sellKeys) == 0 {
			continue
		}

		best, found := r.evaluatePair(buyKeys, sellKeys, report)
		if !found {
			continue
		}

		if best.Execute {
			report.Executions++
			report.TotalProfit.Add(report.TotalProfit, best.Profit)
			if best.Profit.Cmp(report.BestProfit) > 0 {
				report.BestProfit = new(big.Int).Set(best.Profit)
				report.BestBlock = block
			}
		} else {
			report.Rejections++
		}

		if r.store != nil {
			if err := r.store.SaveDecision(block, pk.chain, pk.pair, best); err != nil {
				return fmt.Errorf("block %d: %w", block, err)
			}
		}
	}
	return nil
}

// evaluatePair runs every buy and sell venue combination and keeps the
// most profitable decision, counting each evaluation.
func (r *Runner) evaluatePair(buyKeys, sellKeys []registry.Key, report *Report) (engine.Decision, bool) {
	var (
		best  engine.Decision
		found bool
	)
	for _, bk := range buyKeys {
		buySnap, ok := r.registry.Get(bk)
		if !ok {
			continue
		}
		history := r.registry.History(bk)
		if len(history) == 0 {
			continue
		}
		for _, sk := range sellKeys {
			sellSnap, ok := r.registry.Get(sk)
			if !ok {
				continue
			}

			report.Evaluations++
			d, err := r.coord.Evaluate(engine.Input{
				Buy:     buySnap.Pool,
				Sell:    sellSnap.Pool,
				History: history,
			})
			if err != nil {
				report.Errors++
				continue
			}
			if !found || better(d, best) {
				best, found = d, true
			}
		}
	}
	return best, found
}

func better(a, b engine.Decision) bool {
	if a.Execute != b.Execute {
		return a.Execute
	}
	if a.Execute {
		return a.Profit.Cmp(b.Profit) > 0
	}
	return a.PriceDiffPct > b.PriceDiffPct
}

// reversePair flips "A/B" into "B/A".
func reversePair(pair string) (string, bool) {
	base, quote, ok := strings.Cut(pair, "/")
	if !ok || base == "" || quote == "" {
		return "", false
	}
	return quote + "/" + base, true
}

// History exposes accumulated samples, mostly for inspection after a run.
func (r *Runner) History(key registry.Key) []twap.Sample {
	return r.registry.History(key)
}
