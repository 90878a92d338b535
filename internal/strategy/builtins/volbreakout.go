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
var _ strategy.Strategy = (*VolatilityBreakout)(nil)

// VolatilityBreakout enters when the close clears the period open plus a
// fraction of the previous period's range, and exits the position at the next
// period. The range is either the raw high-low of the lookback period or an
// ATR, and is validated against minimum/maximum range bounds so dead or
// gapping sessions do not trigger.
type VolatilityBreakout struct {
	kFactor        decimal.Decimal
	lookbackPeriod int
	useATR         bool
	atrPeriod      int
	minRangePct    decimal.Decimal // percent of previous close; zero disables
	maxRangePct    decimal.Decimal // percent of previous close; zero disables
	amount         decimal.Decimal
}

// NewVolatilityBreakout builds the strategy from run parameters.
func NewVolatilityBreakout(params strategy.Params) (strategy.Strategy, error) {
	kFactor, err := params.Decimal("k_factor", decimal.NewFromFloat(0.3))
	if err != nil {
		return nil, err
	}
	lookback, err := params.Int("lookback_period", 1)
	if err != nil {
		return nil, err
	}
	useATR, err := params.Bool("use_atr", true)
	if err != nil {
		return nil, err
	}
	atrPeriod, err := params.Int("atr_period", 5)
	if err != nil {
		return nil, err
	}
	minRange, err := params.Decimal("min_range_pct", decimal.NewFromFloat(0.1))
	if err != nil {
		return nil, err
	}
	maxRange, err := params.Decimal("max_range_pct", decimal.Zero)
	if err != nil {
		return nil, err
	}
	amount, err := params.Decimal("amount", decimal.Zero)
	if err != nil {
		return nil, err
	}

	if kFactor.LessThanOrEqual(decimal.Zero) || kFactor.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errs.NewConfigError("k_factor", "must lie in (0, 1], got %s", kFactor)
	}
	if lookback <= 0 {
		return nil, errs.NewConfigError("lookback_period", "must be positive, got %d", lookback)
	}
	if atrPeriod <= 0 {
		return nil, errs.NewConfigError("atr_period", "must be positive, got %d", atrPeriod)
	}
	if minRange.IsNegative() || maxRange.IsNegative() {
		return nil, errs.NewConfigError("min_range_pct", "range bounds must not be negative")
	}

	return &VolatilityBreakout{
		kFactor:        kFactor,
		lookbackPeriod: lookback,
		useATR:         useATR,
		atrPeriod:      atrPeriod,
		minRangePct:    minRange,
		maxRangePct:    maxRange,
		amount:         amount,
	}, nil
}

// Name returns "volatility_breakout".
func (s *VolatilityBreakout) Name() string {
	return "volatility_breakout"
}

// WarmupBars covers the widest of the lookback range and the ATR window.
func (s *VolatilityBreakout) WarmupBars() int {
	warmup := s.lookbackPeriod + 1
	if s.useATR && s.atrPeriod+2 > warmup {
		warmup = s.atrPeriod + 2
	}
	return warmup
}

// Evaluate exits any position held into the current period, otherwise checks
// whether the close broke out above open + k·range.
func (s *VolatilityBreakout) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	// A position entered last period is closed at the period boundary.
	if ec.Position != nil {
		intent := domain.QuantityIntent(ec.Bar.Symbol, domain.SideSell, ec.Position.Quantity)
		intent.Tag.Reason = "period_exit"
		return []domain.TradeIntent{intent}, nil
	}

	rng, prevClose, ok := s.previousRange(ec.History)
	if !ok {
		return nil, nil
	}

	// Range sanity bounds, expressed as a percentage of the previous close.
	if prevClose.IsZero() {
		return nil, nil
	}
	rangePct := rng.Div(prevClose).Mul(decimal.NewFromInt(100))
	if !s.minRangePct.IsZero() && rangePct.LessThan(s.minRangePct) {
		return nil, nil
	}
	if !s.maxRangePct.IsZero() && rangePct.GreaterThan(s.maxRangePct) {
		return nil, nil
	}

	target := ec.Bar.Open.Add(rng.Mul(s.kFactor))
	if ec.Bar.Close.LessThan(target) {
		return nil, nil
	}

	notional := s.amount
	if notional.IsZero() {
		notional = ec.Cash
	}
	intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, notional)
	intent.Tag.Reason = "breakout"
	return []domain.TradeIntent{intent}, nil
}

// previousRange returns the breakout range and the previous close. The
// current bar is excluded: only completed periods feed the range.
func (s *VolatilityBreakout) previousRange(h strategy.History) (decimal.Decimal, decimal.Decimal, bool) {
	n := h.Len()
	if n < 2 {
		return decimal.Zero, decimal.Zero, false
	}
	prevClose := h.Closes[n-2]

	if s.useATR {
		atr, err := indicator.ATR(h.Highs[:n-1], h.Lows[:n-1], h.Closes[:n-1], s.atrPeriod)
		if err != nil {
			return decimal.Zero, decimal.Zero, false
		}
		return atr, prevClose, true
	}

	if n < s.lookbackPeriod+1 {
		return decimal.Zero, decimal.Zero, false
	}
	high := h.Highs[n-1-s.lookbackPeriod]
	low := h.Lows[n-1-s.lookbackPeriod]
	for _, v := range h.Highs[n-s.lookbackPeriod : n-1] {
		if v.GreaterThan(high) {
			high = v
		}
	}
	for _, v := range h.Lows[n-s.lookbackPeriod : n-1] {
		if v.LessThan(low) {
			low = v
		}
	}
	return high.Sub(low), prevClose, true
}
