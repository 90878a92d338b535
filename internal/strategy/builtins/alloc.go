package builtins

import (
	"context"
	"time"

	"kairos/internal/domain"
	"kairos/internal/rebalance"
	"kairos/internal/strategy"
)

// allocatorBase supplies the per-bar half of the Strategy contract for
// multi-asset strategies, which trade only through target weights and never
// emit per-bar intents themselves.
type allocatorBase struct {
	name   string
	warmup int
}

func (a *allocatorBase) Name() string {
	return a.name
}

func (a *allocatorBase) WarmupBars() int {
	return a.warmup
}

func (a *allocatorBase) Evaluate(_ context.Context, _ strategy.EvalContext) ([]domain.TradeIntent, error) {
	return nil, nil
}

// monthlyCadence throttles rebalance evaluation to calendar-month
// boundaries. The first bar always triggers so a run starts invested.
type monthlyCadence struct {
	intervalMonths int
	last           time.Time
	primed         bool
}

func (m *monthlyCadence) due(ts time.Time) bool {
	if !m.primed {
		m.primed = true
		m.last = ts
		return true
	}
	if rebalance.ShouldRebalance(ts, m.last, m.intervalMonths) {
		m.last = ts
		return true
	}
	return false
}
