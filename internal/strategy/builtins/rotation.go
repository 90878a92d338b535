package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
	"kairos/internal/indicator"
	"kairos/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*StockRotation)(nil)
var _ strategy.Allocator = (*StockRotation)(nil)

// StockRotation holds the top-N symbols of a universe by multi-horizon
// momentum at equal weight, scaled by an invest rate and a cash reserve.
// Symbols whose momentum cannot be computed are skipped rather than failing
// the run; a momentum floor keeps weak names out even when slots remain.
type StockRotation struct {
	allocatorBase
	universe        []string
	topN            int
	investRate      decimal.Decimal
	cashReserveRate decimal.Decimal
	minMomentum     decimal.Decimal
	lookbacks       []int
	cadence         monthlyCadence
}

// NewStockRotation builds the strategy from run parameters. The universe
// comes from the run request's symbols list.
func NewStockRotation(params strategy.Params) (strategy.Strategy, error) {
	universe, err := params.StringSlice("symbols", nil)
	if err != nil {
		return nil, err
	}
	topN, err := params.Int("top_n", 5)
	if err != nil {
		return nil, err
	}
	investRate, err := params.Decimal("invest_rate", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	cashReserve, err := params.Decimal("cash_reserve_rate", decimal.Zero)
	if err != nil {
		return nil, err
	}
	minMomentum, err := params.Decimal("min_momentum", decimal.Zero)
	if err != nil {
		return nil, err
	}
	interval, err := params.Int("rebalance_interval_months", 1)
	if err != nil {
		return nil, err
	}

	if len(universe) == 0 {
		return nil, errs.NewConfigError("symbols", "rotation universe must not be empty")
	}
	if topN <= 0 {
		return nil, errs.NewConfigError("top_n", "must be positive, got %d", topN)
	}
	one := decimal.NewFromInt(1)
	if investRate.LessThanOrEqual(decimal.Zero) || investRate.GreaterThan(one) {
		return nil, errs.NewConfigError("invest_rate", "must lie in (0, 1], got %s", investRate)
	}
	if cashReserve.IsNegative() || cashReserve.GreaterThanOrEqual(one) {
		return nil, errs.NewConfigError("cash_reserve_rate", "must lie in [0, 1), got %s", cashReserve)
	}

	lookbacks := indicator.DefaultLookbacks
	return &StockRotation{
		allocatorBase:   allocatorBase{name: "stock_rotation", warmup: lookbacks[len(lookbacks)-1] + 1},
		universe:        universe,
		topN:            topN,
		investRate:      investRate,
		cashReserveRate: cashReserve,
		minMomentum:     minMomentum,
		lookbacks:       lookbacks,
		cadence:         monthlyCadence{intervalMonths: interval},
	}, nil
}

// Symbols returns the rotation universe.
func (s *StockRotation) Symbols() []string {
	return s.universe
}

// TargetWeights ranks the universe and allocates equal weights to the top-N
// names above the momentum floor.
func (s *StockRotation) TargetWeights(_ context.Context, mc strategy.MultiEvalContext) (map[string]decimal.Decimal, bool, error) {
	if !s.cadence.due(mc.Timestamp) {
		return nil, false, nil
	}

	scores := make(map[string]decimal.Decimal, len(s.universe))
	for _, sym := range s.universe {
		score, err := indicator.Momentum(mc.Histories[sym].Closes, s.lookbacks)
		if err != nil {
			continue
		}
		if score.GreaterThan(s.minMomentum) {
			scores[sym] = score
		}
	}
	if len(scores) == 0 {
		// Nothing qualifies: hold cash.
		return map[string]decimal.Decimal{}, true, nil
	}

	ranked := indicator.Rank(scores)
	n := s.topN
	if n > len(ranked) {
		n = len(ranked)
	}

	deployable := s.investRate.Mul(decimal.NewFromInt(1).Sub(s.cashReserveRate))
	slot := deployable.Div(decimal.NewFromInt(int64(n)))
	targets := make(map[string]decimal.Decimal, n)
	for _, entry := range ranked[:n] {
		targets[entry.Symbol] = slot
	}
	return targets, true, nil
}
