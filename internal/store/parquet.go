package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
)

// Compile-time interface checks.
var _ MarketDataProvider = (*ParquetStore)(nil)
var _ BarWriter = (*ParquetStore)(nil)

// ParquetStore reads and writes daily bar data as Parquet files on disk,
// one file per symbol and year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data. Prices are stored as
// decimal strings so no precision is lost on the round trip.
type BarRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      string `parquet:"open"`
	High      string `parquet:"high"`
	Low       string `parquet:"low"`
	Close     string `parquet:"close"`
	Volume    string `parquet:"volume"`
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp.UnixMilli(),
		Open:      b.Open.String(),
		High:      b.High.String(),
		Low:       b.Low.String(),
		Close:     b.Close.String(),
		Volume:    b.Volume.String(),
	}
}

func (r BarRecord) toBar() (domain.Bar, error) {
	bar := domain.Bar{
		Symbol:    r.Symbol,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", r.Open, &bar.Open},
		{"high", r.High, &bar.High},
		{"low", r.Low, &bar.Low},
		{"close", r.Close, &bar.Close},
		{"volume", r.Volume, &bar.Volume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.Bar{}, errs.NewDataError(r.Symbol,
				"bad %s %q at %s", f.name, f.raw, bar.Timestamp)
		}
		*f.dst = d
	}
	return bar, nil
}

// ---------------------------------------------------------------------------
// MarketDataProvider implementation
// ---------------------------------------------------------------------------

// GetBars reads bar data for the symbol across the year files covering
// [start, end]. A symbol with no files at all is a DataError; a year with a
// missing file is simply skipped.
func (s *ParquetStore) GetBars(
	_ context.Context,
	symbol string,
	tf domain.Timeframe,
	start, end time.Time,
) ([]domain.Bar, error) {
	var bars []domain.Bar
	found := false
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, tf, year)
		records, err := parquet.ReadFile[BarRecord](path)
		if err != nil {
			continue
		}
		found = true
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bar, err := r.toBar()
			if err != nil {
				return nil, err
			}
			bar.Timeframe = tf
			bars = append(bars, bar)
		}
	}
	if !found {
		return nil, errs.NewDataError(symbol, "no %s bar files under %s", tf, s.DataDir)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ListSymbols lists all symbols that have bar data at the given timeframe.
func (s *ParquetStore) ListSymbols(_ context.Context, tf domain.Timeframe) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(tf))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// BarWriter implementation
// ---------------------------------------------------------------------------

// WriteBars writes daily bars grouped by symbol and year. Each symbol+year
// combination produces a separate file at:
//
//	<DataDir>/<timeframe>/<SYMBOL>/<YYYY>.parquet
//
// Existing records for the same (symbol, timestamp) are replaced.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, domain.Timeframe1Day, k.year)

		existing, _ := parquet.ReadFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Path and file helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, tf domain.Timeframe, year int) string {
	return filepath.Join(s.DataDir, string(tf), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
