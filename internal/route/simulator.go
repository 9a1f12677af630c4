package route

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/arbmath/arb-engine/internal/amm"
)

// SimulatePaths evaluates every candidate path independently: each path is
// walked with its own flashloan amount, profit is final output minus
// principal, flashloan fee and gas, and the single best entry is marked.
// Paths may have different hop counts, and one failing path never blocks
// the others.
func SimulatePaths(paths []Path, amounts []*big.Int, feeRate float64, gasCosts []*big.Int) (Ranking, error) {
	if len(paths) == 0 || len(amounts) != len(paths) || len(gasCosts) != len(paths) {
		return nil, amm.ErrInvalidInput
	}
	if feeRate < 0 || feeRate >= 1 || math.IsNaN(feeRate) {
		return nil, amm.ErrInvalidInput
	}

	results := make(Ranking, len(paths))
	var wg sync.WaitGroup
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = simulateOne(i, paths[i], amounts[i], feeRate, gasCosts[i])
		}(i)
	}
	wg.Wait()

	markBest(results)
	sort.SliceStable(results, func(a, b int) bool {
		ra, rb := results[a], results[b]
		if (ra.Err == nil) != (rb.Err == nil) {
			return ra.Err == nil
		}
		if ra.Err != nil {
			return false
		}
		// same tie-break as markBest so the best entry always sorts first
		if cmp := ra.Profit.Cmp(rb.Profit); cmp != 0 {
			return cmp > 0
		}
		return ra.SlippagePct < rb.SlippagePct
	})
	return results, nil
}

func simulateOne(idx int, path Path, amount *big.Int, feeRate float64, gasCost *big.Int) (res SimulationResult) {
	res = SimulationResult{PathIndex: idx}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("path %d: panic: %v", idx, r)
		}
	}()

	if amount == nil || amount.Sign() <= 0 || gasCost == nil || gasCost.Sign() < 0 {
		res.Err = fmt.Errorf("path %d: %w", idx, amm.ErrInvalidInput)
		return res
	}

	slip, err := PathSlippage(path, amount)
	if err != nil {
		res.Err = fmt.Errorf("path %d: %w", idx, err)
		return res
	}

	out := new(big.Int).Set(amount)
	for _, leg := range path {
		out, err = leg.Pool.AmountOut(out, leg.Fee)
		if err != nil {
			res.Err = fmt.Errorf("path %d: %w", idx, err)
			return res
		}
	}

	ppm := int64(math.Round(feeRate * 1_000_000))
	flashFee := new(big.Int).Mul(amount, big.NewInt(ppm))
	flashFee.Div(flashFee, big.NewInt(1_000_000))

	profit := new(big.Int).Sub(out, amount)
	profit.Sub(profit, flashFee)
	profit.Sub(profit, gasCost)

	res.Profit = profit
	res.SlippagePct = slip
	return res
}

// markBest flags the argmax-profit result, breaking ties on lower slippage.
func markBest(results Ranking) {
	best := -1
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		cmp := results[i].Profit.Cmp(results[best].Profit)
		if cmp > 0 || (cmp == 0 && results[i].SlippagePct < results[best].SlippagePct) {
			best = i
		}
	}
	if best >= 0 {
		results[best].IsBest = true
	}
}
