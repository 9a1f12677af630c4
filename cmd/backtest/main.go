package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arbmath/arb-engine/internal/backtest"
	"github.com/arbmath/arb-engine/internal/engine"
)

func main() {
	_ = godotenv.Load()

	var (
		snapshotPath = flag.String("snapshots", envOr("SNAPSHOT_FILE", "data/snapshots.parquet"), "Path to pool snapshot parquet file")
		dbPath       = flag.String("db", envOr("RESULT_DB", "data/results.db"), "Path to results database")
		minSpread    = flag.Float64("min-spread", 0.5, "Minimum cross-venue spread in percent")
		maxTWAPDev   = flag.Float64("max-twap-dev", 5.0, "Maximum spot deviation from TWAP in percent")
		minProfit    = flag.String("min-profit", "1", "Minimum profit in output token units")
		maxFraction  = flag.Float64("max-fraction", 0.30, "Flashloan cap as a fraction of pool liquidity")
		flashFee     = flag.Float64("flash-fee", 0.0009, "Flashloan fee rate")
		gasCost      = flag.String("gas", "0", "Gas cost in output token units")
		historyDepth = flag.Int("history-depth", 256, "Price history samples kept per pool")
		verbose      = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	logger, err := buildLogger(*verbose)
	if err != nil {
		fmt.Printf("build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	minProfitWei, ok := new(big.Int).SetString(*minProfit, 10)
	if !ok {
		logger.Fatal("min-profit is not a decimal integer", zap.String("value", *minProfit))
	}
	gas, ok := new(big.Int).SetString(*gasCost, 10)
	if !ok {
		logger.Fatal("gas is not a decimal integer", zap.String("value", *gasCost))
	}

	records, err := backtest.ReadSnapshots(*snapshotPath)
	if err != nil {
		logger.Fatal("load snapshots", zap.Error(err))
	}
	logger.Info("snapshots loaded",
		zap.String("path", *snapshotPath), zap.Int("records", len(records)))

	store, err := backtest.NewResultDB(*dbPath)
	if err != nil {
		logger.Fatal("open result db", zap.Error(err))
	}
	defer store.Close()

	thresholds := engine.Thresholds{
		MinPriceDiffPct:     *minSpread,
		MaxTWAPDeviationPct: *maxTWAPDev,
		MinProfit:           minProfitWei,
		MaxSizeFraction:     *maxFraction,
		FlashloanFeeRate:    *flashFee,
		GasCost:             gas,
	}
	runner, err := backtest.NewRunner(thresholds, *historyDepth, store, logger)
	if err != nil {
		logger.Fatal("build runner", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := runner.Run(ctx, records)
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	fmt.Printf("\nbacktest: blocks %d-%d\n", report.StartBlock, report.EndBlock)
	fmt.Printf("  blocks processed: %d\n", report.BlocksProcessed)
	fmt.Printf("  evaluations:      %d\n", report.Evaluations)
	fmt.Printf("  executions:       %d\n", report.Executions)
	fmt.Printf("  rejections:       %d\n", report.Rejections)
	fmt.Printf("  errors:           %d\n", report.Errors)
	fmt.Printf("  hit rate:         %.2f%%\n", report.HitRate()*100)
	fmt.Printf("  total profit:     %s\n", report.TotalProfit)
	if report.BestProfit.Sign() > 0 {
		fmt.Printf("  best block:       %d (profit %s)\n", report.BestBlock, report.BestProfit)
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
