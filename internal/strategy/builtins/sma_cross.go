// Package builtins provides the built-in strategy implementations that ship
// with the kairos platform: threshold and breakout strategies over a single
// symbol, the staged-entry split strategy, and the multi-asset allocation
// strategies.
package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/indicator"
	"kairos/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross buys when the fast SMA crosses above the slow SMA and sells the
// whole position when it crosses back below.
type SMACross struct {
	fastPeriod int
	slowPeriod int
	amount     decimal.Decimal // notional per entry; zero means all cash
}

// NewSMACross builds the strategy from run parameters.
func NewSMACross(params strategy.Params) (strategy.Strategy, error) {
	fast, err := params.Int("fast_period", 5)
	if err != nil {
		return nil, err
	}
	slow, err := params.Int("slow_period", 20)
	if err != nil {
		return nil, err
	}
	amount, err := params.Decimal("amount", decimal.Zero)
	if err != nil {
		return nil, err
	}
	if fast <= 0 {
		return nil, errs.NewConfigError("fast_period", "must be positive, got %d", fast)
	}
	if slow <= fast {
		return nil, errs.NewConfigError("slow_period", "must exceed fast_period %d, got %d", fast, slow)
	}
	if amount.IsNegative() {
		return nil, errs.NewConfigError("amount", "must not be negative")
	}
	return &SMACross{fastPeriod: fast, slowPeriod: slow, amount: amount}, nil
}

// Name returns "sma_crossover".
func (s *SMACross) Name() string {
	return "sma_crossover"
}

// WarmupBars returns the slow period plus one bar for cross detection.
func (s *SMACross) WarmupBars() int {
	return s.slowPeriod + 1
}

// Evaluate detects a fast/slow SMA cross between the previous bar and the
// current one.
func (s *SMACross) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	closes := ec.History.Closes
	if len(closes) < s.slowPeriod+1 {
		return nil, nil
	}

	fastNow, err := indicator.SMA(closes, s.fastPeriod)
	if err != nil {
		return nil, nil
	}
	slowNow, err := indicator.SMA(closes, s.slowPeriod)
	if err != nil {
		return nil, nil
	}
	prev := closes[:len(closes)-1]
	fastPrev, err := indicator.SMA(prev, s.fastPeriod)
	if err != nil {
		return nil, nil
	}
	slowPrev, err := indicator.SMA(prev, s.slowPeriod)
	if err != nil {
		return nil, nil
	}

	goldenCross := fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow)
	deathCross := fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow)

	if ec.Position == nil && goldenCross {
		notional := s.amount
		if notional.IsZero() {
			notional = ec.Cash
		}
		intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, notional)
		intent.Tag.Reason = "golden_cross"
		return []domain.TradeIntent{intent}, nil
	}
	if ec.Position != nil && deathCross {
		intent := domain.QuantityIntent(ec.Bar.Symbol, domain.SideSell, ec.Position.Quantity)
		intent.Tag.Reason = "death_cross"
		return []domain.TradeIntent{intent}, nil
	}
	return nil, nil
}
