package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
	"kairos/internal/indicator"
	"kairos/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*DualMomentum)(nil)
var _ strategy.Allocator = (*DualMomentum)(nil)

// DualMomentum holds the single risk asset with the best relative momentum,
// gated by absolute momentum: when even the winner's lookback return is not
// positive, the allocation moves to the safe asset instead.
type DualMomentum struct {
	allocatorBase
	riskSymbols    []string
	safeSymbol     string
	momentumPeriod int
	useAbsolute    bool
	cadence        monthlyCadence
}

// NewDualMomentum builds the strategy from run parameters.
func NewDualMomentum(params strategy.Params) (strategy.Strategy, error) {
	risk, err := params.StringSlice("risk_symbols", []string{"SPY", "EFA"})
	if err != nil {
		return nil, err
	}
	safe, err := params.String("safe_symbol", "AGG")
	if err != nil {
		return nil, err
	}
	period, err := params.Int("momentum_period", 63)
	if err != nil {
		return nil, err
	}
	useAbsolute, err := params.Bool("use_absolute_momentum", true)
	if err != nil {
		return nil, err
	}
	interval, err := params.Int("rebalance_interval_months", 1)
	if err != nil {
		return nil, err
	}

	if len(risk) < 2 {
		return nil, errs.NewConfigError("risk_symbols", "need at least two symbols, got %d", len(risk))
	}
	if safe == "" {
		return nil, errs.NewConfigError("safe_symbol", "must not be empty")
	}
	if period <= 0 {
		return nil, errs.NewConfigError("momentum_period", "must be positive, got %d", period)
	}

	return &DualMomentum{
		allocatorBase:  allocatorBase{name: "dual_momentum", warmup: period + 1},
		riskSymbols:    risk,
		safeSymbol:     safe,
		momentumPeriod: period,
		useAbsolute:    useAbsolute,
		cadence:        monthlyCadence{intervalMonths: interval},
	}, nil
}

// Symbols returns the risk universe plus the safe asset.
func (s *DualMomentum) Symbols() []string {
	out := make([]string, 0, len(s.riskSymbols)+1)
	out = append(out, s.riskSymbols...)
	out = append(out, s.safeSymbol)
	return out
}

// TargetWeights picks the relative-momentum winner, subject to the absolute
// gate, on monthly boundaries.
func (s *DualMomentum) TargetWeights(_ context.Context, mc strategy.MultiEvalContext) (map[string]decimal.Decimal, bool, error) {
	if !s.cadence.due(mc.Timestamp) {
		return nil, false, nil
	}

	scores := make(map[string]decimal.Decimal, len(s.riskSymbols))
	for _, sym := range s.riskSymbols {
		r, err := indicator.Return(mc.Histories[sym].Closes, s.momentumPeriod)
		if err != nil {
			continue
		}
		scores[sym] = r
	}
	if len(scores) == 0 {
		return map[string]decimal.Decimal{s.safeSymbol: decimal.NewFromInt(1)}, true, nil
	}

	winner := indicator.Rank(scores)[0]
	if s.useAbsolute && winner.Score.LessThanOrEqual(decimal.Zero) {
		return map[string]decimal.Decimal{s.safeSymbol: decimal.NewFromInt(1)}, true, nil
	}
	return map[string]decimal.Decimal{winner.Symbol: decimal.NewFromInt(1)}, true, nil
}
