package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kairos/internal/domain"
	"kairos/internal/errs"
)

// Compile-time interface checks.
var _ MarketDataProvider = (*MemoryProvider)(nil)
var _ BarWriter = (*MemoryProvider)(nil)

// MemoryProvider serves bars from memory. It backs tests and small
// self-contained datasets.
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]domain.Bar
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{bars: make(map[string][]domain.Bar)}
}

// WriteBars adds bars, replacing any existing bar with the same symbol and
// timestamp.
func (m *MemoryProvider) WriteBars(_ context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bar := range bars {
		series := m.bars[bar.Symbol]
		replaced := false
		for i, existing := range series {
			if existing.Timestamp.Equal(bar.Timestamp) {
				series[i] = bar
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, bar)
		}
		sort.Slice(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
		m.bars[bar.Symbol] = series
	}
	return nil
}

// GetBars returns the stored bars for symbol within [start, end].
func (m *MemoryProvider) GetBars(
	_ context.Context,
	symbol string,
	_ domain.Timeframe,
	start, end time.Time,
) ([]domain.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series, ok := m.bars[symbol]
	if !ok {
		return nil, errs.NewDataError(symbol, "symbol not loaded")
	}
	var out []domain.Bar
	for _, bar := range series {
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}
