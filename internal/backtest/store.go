package backtest

import (
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arbmath/arb-engine/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	block          INTEGER NOT NULL,
	chain          INTEGER NOT NULL,
	pair           TEXT    NOT NULL,
	executed       INTEGER NOT NULL,
	amount         TEXT    NOT NULL,
	profit         TEXT    NOT NULL,
	final_state    TEXT    NOT NULL,
	reason         TEXT    NOT NULL,
	price_diff_pct REAL    NOT NULL,
	PRIMARY KEY (block, chain, pair)
);

CREATE INDEX IF NOT EXISTS idx_decisions_executed ON decisions(executed);
`

// ResultDB persists per-block decisions so runs can be compared later.
type ResultDB struct {
	db *sql.DB
}

func NewResultDB(dbPath string) (*ResultDB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open result db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}

	return &ResultDB{db: db}, nil
}

func (r *ResultDB) Close() error {
	return r.db.Close()
}

// StoredDecision is one persisted pipeline outcome.
type StoredDecision struct {
	Block        uint64
	Chain        uint64
	Pair         string
	Executed     bool
	Amount       *big.Int
	Profit       *big.Int
	FinalState   string
	Reason       string
	PriceDiffPct float64
}

// SaveDecision records the outcome for one block and pair, overwriting any
// earlier run's row.
func (r *ResultDB) SaveDecision(block, chain uint64, pair string, d engine.Decision) error {
	amount := "0"
	if d.Amount != nil {
		amount = d.Amount.String()
	}
	profit := "0"
	if d.Profit != nil {
		profit = d.Profit.String()
	}

	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO decisions
		 (block, chain, pair, executed, amount, profit, final_state, reason, price_diff_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		block, chain, pair, d.Execute, amount, profit,
		d.FinalState.String(), d.Reason, d.PriceDiffPct,
	)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// Decisions returns stored outcomes for a block range, ordered by block.
func (r *ResultDB) Decisions(startBlock, endBlock uint64) ([]StoredDecision, error) {
	rows, err := r.db.Query(
		`SELECT block, chain, pair, executed, amount, profit, final_state, reason, price_diff_pct
		 FROM decisions WHERE block >= ? AND block <= ?
		 ORDER BY block, chain, pair`,
		startBlock, endBlock,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []StoredDecision
	for rows.Next() {
		var (
			d              StoredDecision
			amount, profit string
		)
		if err := rows.Scan(&d.Block, &d.Chain, &d.Pair, &d.Executed,
			&amount, &profit, &d.FinalState, &d.Reason, &d.PriceDiffPct); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Amount, _ = new(big.Int).SetString(amount, 10)
		d.Profit, _ = new(big.Int).SetString(profit, 10)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarises the stored decisions for monitoring.
func (r *ResultDB) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM decisions").Scan(&count); err != nil {
		return nil, err
	}
	stats["decisions"] = count

	if err := r.db.QueryRow("SELECT COUNT(*) FROM decisions WHERE executed = 1").Scan(&count); err != nil {
		return nil, err
	}
	stats["executed"] = count

	return stats, nil
}
