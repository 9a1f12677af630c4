package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/arbmath/arb-engine/internal/backtest"
)

// generates a synthetic snapshot file for exercising the backtest binary:
// two constant-product venues for one pair, with the second venue's price
// drifting so some blocks open a spread
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: go run gen_snapshots.go <output.parquet> <blocks>")
	}
	path := os.Args[1]
	blocks, err := strconv.Atoi(os.Args[2])
	if err != nil || blocks <= 0 {
		log.Fatalf("blocks must be a positive integer, got %q", os.Args[2])
	}

	rng := rand.New(rand.NewSource(1))
	records := make([]backtest.SnapshotRecord, 0, blocks*4)

	for b := 0; b < blocks; b++ {
		block := int64(18_000_000 + b)
		ts := block * 12

		// venue one holds steady at 2.0 USDC per WETH
		records = append(records,
			record(block, ts, "0x1111111111111111111111111111111111111111", "WETH/USDC", "1000000000", "2000000000"),
			record(block, ts, "0x1111111111111111111111111111111111111111", "USDC/WETH", "2000000000", "1000000000"),
		)

		// venue two drifts within ±15% of it
		drift := 1.0 + (rng.Float64()-0.5)*0.3
		out := int64(2_000_000_000 * drift)
		records = append(records,
			record(block, ts, "0x2222222222222222222222222222222222222222", "WETH/USDC", "1000000000", strconv.FormatInt(out, 10)),
			record(block, ts, "0x2222222222222222222222222222222222222222", "USDC/WETH", strconv.FormatInt(out, 10), "1000000000"),
		)
	}

	if err := backtest.WriteSnapshots(path, records); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %d records (%d blocks) to %s\n", len(records), blocks, path)
}

func record(block, ts int64, addr, pair, reserveIn, reserveOut string) backtest.SnapshotRecord {
	return backtest.SnapshotRecord{
		Chain:      1,
		Address:    addr,
		Pair:       pair,
		Block:      block,
		Timestamp:  ts,
		Kind:       backtest.KindConstantProduct,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}
}
