package backtest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/arbmath/arb-engine/internal/amm"
	"github.com/arbmath/arb-engine/internal/registry"
)

// pool family names used in snapshot files
const (
	KindConstantProduct = "constant_product"
	KindConcentrated    = "concentrated"
	KindWeighted        = "weighted"
	KindStable          = "stable"
)

// SnapshotRecord is one pool observation in a snapshot file. Reserves are
// decimal strings so arbitrary-precision values survive the round trip.
// ReserveIn and ReserveOut hold liquidity and sqrt price for concentrated
// pools; Amplification is only meaningful for stable pools.
type SnapshotRecord struct {
	Chain         int64   `parquet:"name=chain, type=INT64"`
	Address       string  `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pair          string  `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Block         int64   `parquet:"name=block, type=INT64"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64"`
	Kind          string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReserveIn     string  `parquet:"name=reserve_in, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReserveOut    string  `parquet:"name=reserve_out, type=BYTE_ARRAY, convertedtype=UTF8"`
	WeightIn      float64 `parquet:"name=weight_in, type=DOUBLE"`
	WeightOut     float64 `parquet:"name=weight_out, type=DOUBLE"`
	Amplification int64   `parquet:"name=amplification, type=INT64"`
	Fee           float64 `parquet:"name=fee, type=DOUBLE"`
}

// Key derives the registry key of a record.
func (rec *SnapshotRecord) Key() registry.Key {
	return registry.Key{
		Chain:   uint64(rec.Chain),
		Address: common.HexToAddress(rec.Address),
		Pair:    rec.Pair,
	}
}

// Pool reconstructs the pool the record describes.
func (rec *SnapshotRecord) Pool() (amm.Pool, error) {
	in, ok := new(big.Int).SetString(rec.ReserveIn, 10)
	if !ok {
		return nil, fmt.Errorf("reserve_in %q is not a decimal integer: %w", rec.ReserveIn, amm.ErrInvalidInput)
	}
	out, ok := new(big.Int).SetString(rec.ReserveOut, 10)
	if !ok {
		return nil, fmt.Errorf("reserve_out %q is not a decimal integer: %w", rec.ReserveOut, amm.ErrInvalidInput)
	}

	switch rec.Kind {
	case KindConstantProduct:
		return &amm.ConstantProductPool{ReserveIn: in, ReserveOut: out}, nil
	case KindConcentrated:
		liquidity, overflow := uint256.FromBig(in)
		if overflow {
			return nil, fmt.Errorf("liquidity %q overflows 256 bits: %w", rec.ReserveIn, amm.ErrInvalidInput)
		}
		sqrtPrice, overflow := uint256.FromBig(out)
		if overflow {
			return nil, fmt.Errorf("sqrt price %q overflows 256 bits: %w", rec.ReserveOut, amm.ErrInvalidInput)
		}
		return &amm.ConcentratedPool{Liquidity: liquidity, SqrtPriceX96: sqrtPrice}, nil
	case KindWeighted:
		return amm.NewWeightedPool([]*big.Int{in, out}, []float64{rec.WeightIn, rec.WeightOut}), nil
	case KindStable:
		if rec.Amplification <= 0 {
			return nil, fmt.Errorf("stable pool needs a positive amplification, got %d: %w", rec.Amplification, amm.ErrInvalidInput)
		}
		return amm.NewStablePool([]*big.Int{in, out}, uint64(rec.Amplification)), nil
	default:
		return nil, fmt.Errorf("unknown pool kind %q: %w", rec.Kind, amm.ErrInvalidInput)
	}
}

// Snapshot converts the record into a registry snapshot.
func (rec *SnapshotRecord) Snapshot() (registry.Snapshot, error) {
	pool, err := rec.Pool()
	if err != nil {
		return registry.Snapshot{}, err
	}
	return registry.Snapshot{
		Pool:      pool,
		Block:     uint64(rec.Block),
		Timestamp: rec.Timestamp,
	}, nil
}

// ReadSnapshots loads every record from a parquet snapshot file.
func ReadSnapshots(path string) ([]SnapshotRecord, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(SnapshotRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	records := make([]SnapshotRecord, 0, numRows)
	const batchSize = 1000

	for len(records) < numRows {
		toRead := batchSize
		if remaining := numRows - len(records); remaining < toRead {
			toRead = remaining
		}
		rows := make([]SnapshotRecord, toRead)
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read snapshot batch at %d: %w", len(records), err)
		}
		if len(rows) == 0 {
			break
		}
		records = append(records, rows...)
	}
	return records, nil
}

// WriteSnapshots writes records to a parquet snapshot file.
func WriteSnapshots(path string, records []SnapshotRecord) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(SnapshotRecord), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	for i := range records {
		if err := pw.Write(records[i]); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize snapshot file: %w", err)
	}
	return nil
}
