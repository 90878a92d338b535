package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/backtest"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ResultsSink = (*SQLiteSink)(nil)

// SQLiteSink persists finished backtest reports to a SQLite database:
// one row per run plus its fill ledger and equity curve. Monetary values
// are stored as decimal strings.
type SQLiteSink struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	strategy_id      TEXT NOT NULL,
	initial_capital  TEXT NOT NULL,
	final_equity     TEXT NOT NULL,
	total_return_pct TEXT NOT NULL,
	trade_count      INTEGER NOT NULL,
	win_rate         TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	profit_factor    TEXT NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(run_id),
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL,
	price          TEXT NOT NULL,
	quantity       TEXT NOT NULL,
	commission     TEXT NOT NULL,
	slippage       TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	level          INTEGER NOT NULL,
	reason         TEXT NOT NULL,
	realized_pnl   TEXT NOT NULL,
	position_after TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id);

CREATE TABLE IF NOT EXISTS equity_curve (
	run_id         TEXT NOT NULL REFERENCES runs(run_id),
	timestamp      TEXT NOT NULL,
	cash           TEXT NOT NULL,
	position_value TEXT NOT NULL,
	total_equity   TEXT NOT NULL,
	PRIMARY KEY (run_id, timestamp)
);
`

// NewSQLiteSink opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// SaveReport writes the run, its fills, and its equity curve in one
// transaction. Saving the same run ID twice replaces the previous record.
func (s *SQLiteSink) SaveReport(ctx context.Context, report *backtest.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fills WHERE run_id = ?`, report.RunID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM equity_curve WHERE run_id = ?`, report.RunID); err != nil {
		return err
	}

	sum := report.Summary
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, strategy_id, initial_capital, final_equity, total_return_pct,
			 trade_count, win_rate, max_drawdown_pct, profit_factor, sharpe_ratio, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.StrategyID,
		sum.InitialCapital.String(), sum.FinalEquity.String(), sum.TotalReturnPct.String(),
		sum.TradeCount, sum.WinRate.String(), sum.MaxDrawdownPct.String(),
		sum.ProfitFactor.String(), sum.SharpeRatio,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", report.RunID, err)
	}

	for _, f := range report.Fills {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fills
				(id, run_id, symbol, side, price, quantity, commission, slippage,
				 timestamp, level, reason, realized_pnl, position_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.RunID, f.Symbol, string(f.Side),
			f.Price.String(), f.Quantity.String(), f.Commission.String(), f.Slippage.String(),
			f.Timestamp.UTC().Format(time.RFC3339), f.Level, f.Reason,
			f.RealizedPnL.String(), f.PositionAfter.String(),
		); err != nil {
			return fmt.Errorf("inserting fill %s: %w", f.ID, err)
		}
	}

	for _, snap := range report.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO equity_curve (run_id, timestamp, cash, position_value, total_equity)
			VALUES (?, ?, ?, ?, ?)`,
			report.RunID, snap.Timestamp.UTC().Format(time.RFC3339),
			snap.Cash.String(), snap.PositionValue.String(), snap.TotalEquity.String(),
		); err != nil {
			return fmt.Errorf("inserting equity snapshot at %s: %w", snap.Timestamp, err)
		}
	}

	return tx.Commit()
}

// RunSummary is one persisted run row.
type RunSummary struct {
	RunID      string
	StrategyID string
	Summary    backtest.Summary
	CreatedAt  time.Time
}

// ListRuns returns the most recent persisted runs, newest first.
func (s *SQLiteSink) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy_id, initial_capital, final_equity, total_return_pct,
		       trade_count, win_rate, max_drawdown_pct, profit_factor, sharpe_ratio, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                                RunSummary
			created                          string
			initial, final, ret, win, dd, pf string
		)
		if err := rows.Scan(&r.RunID, &r.StrategyID, &initial, &final, &ret,
			&r.Summary.TradeCount, &win, &dd, &pf, &r.Summary.SharpeRatio, &created); err != nil {
			return nil, err
		}
		var perr error
		r.Summary.InitialCapital, perr = parseDecimal(initial, perr)
		r.Summary.FinalEquity, perr = parseDecimal(final, perr)
		r.Summary.TotalReturnPct, perr = parseDecimal(ret, perr)
		r.Summary.WinRate, perr = parseDecimal(win, perr)
		r.Summary.MaxDrawdownPct, perr = parseDecimal(dd, perr)
		r.Summary.ProfitFactor, perr = parseDecimal(pf, perr)
		if perr != nil {
			return nil, perr
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseDecimal threads an error through a sequence of decimal parses so the
// caller checks once.
func parseDecimal(raw string, prev error) (decimal.Decimal, error) {
	if prev != nil {
		return decimal.Decimal{}, prev
	}
	return decimal.NewFromString(raw)
}
