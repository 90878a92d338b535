package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
	"kairos/internal/indicator"
	"kairos/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*SimplePower)(nil)
var _ strategy.Allocator = (*SimplePower)(nil)

// sleeve is one fixed-weight slot of the SimplePower allocation.
type sleeve struct {
	symbol string
	weight decimal.Decimal
}

// SimplePower is a fixed-weight sleeve allocation: a leveraged aggressive
// sleeve, a dividend sleeve, a rate-hedge sleeve, and a leveraged bond
// sleeve, all scaled by an overall invest rate. When the aggressive asset
// trades below its long moving average its sleeve weight is parked in the
// dividend sleeve instead.
type SimplePower struct {
	allocatorBase
	sleeves    []sleeve // aggressive first
	investRate decimal.Decimal
	maPeriod   int
	cadence    monthlyCadence
}

// NewSimplePower builds the strategy from run parameters.
func NewSimplePower(params strategy.Params) (strategy.Strategy, error) {
	aggressive, err := params.String("aggressive_symbol", "TQQQ")
	if err != nil {
		return nil, err
	}
	dividend, err := params.String("dividend_symbol", "SCHD")
	if err != nil {
		return nil, err
	}
	rateHedge, err := params.String("rate_hedge_symbol", "PFIX")
	if err != nil {
		return nil, err
	}
	bond, err := params.String("bond_symbol", "TMF")
	if err != nil {
		return nil, err
	}
	aggressiveWeight, err := params.Decimal("aggressive_weight", decimal.NewFromFloat(0.5))
	if err != nil {
		return nil, err
	}
	dividendWeight, err := params.Decimal("dividend_weight", decimal.NewFromFloat(0.2))
	if err != nil {
		return nil, err
	}
	rateHedgeWeight, err := params.Decimal("rate_hedge_weight", decimal.NewFromFloat(0.15))
	if err != nil {
		return nil, err
	}
	bondWeight, err := params.Decimal("bond_weight", decimal.NewFromFloat(0.15))
	if err != nil {
		return nil, err
	}
	investRate, err := params.Decimal("invest_rate", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	maPeriod, err := params.Int("ma_period", 130)
	if err != nil {
		return nil, err
	}
	interval, err := params.Int("rebalance_interval_months", 1)
	if err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	if investRate.LessThanOrEqual(decimal.Zero) || investRate.GreaterThan(one) {
		return nil, errs.NewConfigError("invest_rate", "must lie in (0, 1], got %s", investRate)
	}
	if maPeriod <= 1 {
		return nil, errs.NewConfigError("ma_period", "must be greater than 1, got %d", maPeriod)
	}
	sleeves := []sleeve{
		{symbol: aggressive, weight: aggressiveWeight},
		{symbol: dividend, weight: dividendWeight},
		{symbol: rateHedge, weight: rateHedgeWeight},
		{symbol: bond, weight: bondWeight},
	}
	total := decimal.Zero
	for _, sl := range sleeves {
		if sl.symbol == "" {
			return nil, errs.NewConfigError("aggressive_symbol", "sleeve symbols must not be empty")
		}
		if sl.weight.IsNegative() {
			return nil, errs.NewConfigError("aggressive_weight", "sleeve weights must not be negative")
		}
		total = total.Add(sl.weight)
	}
	if !total.Equal(one) {
		return nil, errs.NewConfigError("aggressive_weight", "sleeve weights must sum to 1, got %s", total)
	}

	return &SimplePower{
		allocatorBase: allocatorBase{name: "simple_power", warmup: maPeriod},
		sleeves:       sleeves,
		investRate:    investRate,
		maPeriod:      maPeriod,
		cadence:       monthlyCadence{intervalMonths: interval},
	}, nil
}

// Symbols returns the four sleeve symbols.
func (s *SimplePower) Symbols() []string {
	out := make([]string, len(s.sleeves))
	for i, sl := range s.sleeves {
		out[i] = sl.symbol
	}
	return out
}

// TargetWeights returns the fixed sleeves scaled by the invest rate, with
// the aggressive sleeve shifted to the dividend sleeve in a down regime.
func (s *SimplePower) TargetWeights(_ context.Context, mc strategy.MultiEvalContext) (map[string]decimal.Decimal, bool, error) {
	if !s.cadence.due(mc.Timestamp) {
		return nil, false, nil
	}

	targets := make(map[string]decimal.Decimal, len(s.sleeves))
	for _, sl := range s.sleeves {
		if sl.weight.IsZero() {
			continue
		}
		targets[sl.symbol] = targets[sl.symbol].Add(sl.weight.Mul(s.investRate))
	}

	// Regime check on the aggressive sleeve.
	aggressive := s.sleeves[0]
	dividend := s.sleeves[1]
	closes := mc.Histories[aggressive.symbol].Closes
	ma, err := indicator.SMA(closes, s.maPeriod)
	if err == nil && len(closes) > 0 && closes[len(closes)-1].LessThan(ma) {
		shifted := targets[aggressive.symbol]
		delete(targets, aggressive.symbol)
		targets[dividend.symbol] = targets[dividend.symbol].Add(shifted)
	}
	return targets, true, nil
}
