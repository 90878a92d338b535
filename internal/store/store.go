// Package store defines the storage interfaces the backtester depends on:
// a source of historical bars and a sink for finished run results. Concrete
// implementations cover Parquet files on disk, SQLite, and memory.
package store

import (
	"context"
	"time"

	"kairos/internal/backtest"
	"kairos/internal/domain"
)

// MarketDataProvider supplies historical OHLCV bars. Implementations return
// bars ordered by timestamp ascending, strictly increasing, and only within
// [start, end].
type MarketDataProvider interface {
	// GetBars returns the bars for symbol at the given timeframe within
	// [start, end]. An unknown symbol yields a DataError.
	GetBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)
}

// ResultsSink persists finished backtest reports.
type ResultsSink interface {
	// SaveReport persists one run's summary, fill ledger, and equity curve.
	SaveReport(ctx context.Context, report *backtest.Report) error
}

// BarWriter is implemented by providers that can also ingest bars, e.g. for
// seeding a local dataset from a live feed.
type BarWriter interface {
	// WriteBars persists a batch of bars, deduplicating on (symbol, timestamp).
	WriteBars(ctx context.Context, bars []domain.Bar) error
}
