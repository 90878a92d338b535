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
var _ strategy.Strategy = (*BollingerRevert)(nil)

// BollingerRevert buys when the close touches the lower Bollinger band,
// optionally confirmed by an oversold RSI, and exits at the middle band or on
// a stop-loss/take-profit threshold. A minimum-bandwidth gate suppresses
// entries in flat, squeezed regimes.
type BollingerRevert struct {
	period             int
	stdMultiplier      decimal.Decimal
	useRSIConfirmation bool
	rsiPeriod          int
	rsiThreshold       decimal.Decimal
	minBandwidthPct    decimal.Decimal
	stopLossPct        decimal.Decimal
	takeProfitPct      decimal.Decimal
	amount             decimal.Decimal
}

// NewBollingerRevert builds the strategy from run parameters.
func NewBollingerRevert(params strategy.Params) (strategy.Strategy, error) {
	period, err := params.Int("period", 20)
	if err != nil {
		return nil, err
	}
	stdMult, err := params.Decimal("std_multiplier", decimal.NewFromFloat(1.5))
	if err != nil {
		return nil, err
	}
	useRSI, err := params.Bool("use_rsi_confirmation", false)
	if err != nil {
		return nil, err
	}
	rsiPeriod, err := params.Int("rsi_period", 14)
	if err != nil {
		return nil, err
	}
	rsiThreshold, err := params.Decimal("rsi_threshold", decimal.NewFromInt(30))
	if err != nil {
		return nil, err
	}
	minBandwidth, err := params.Decimal("min_bandwidth_pct", decimal.Zero)
	if err != nil {
		return nil, err
	}
	stopLoss, err := params.Decimal("stop_loss_pct", decimal.NewFromFloat(0.02))
	if err != nil {
		return nil, err
	}
	takeProfit, err := params.Decimal("take_profit_pct", decimal.NewFromFloat(0.04))
	if err != nil {
		return nil, err
	}
	amount, err := params.Decimal("amount", decimal.Zero)
	if err != nil {
		return nil, err
	}

	if period <= 1 {
		return nil, errs.NewConfigError("period", "must be greater than 1, got %d", period)
	}
	if stdMult.LessThanOrEqual(decimal.Zero) {
		return nil, errs.NewConfigError("std_multiplier", "must be positive, got %s", stdMult)
	}
	if rsiPeriod <= 1 {
		return nil, errs.NewConfigError("rsi_period", "must be greater than 1, got %d", rsiPeriod)
	}
	if minBandwidth.IsNegative() {
		return nil, errs.NewConfigError("min_bandwidth_pct", "must not be negative")
	}

	return &BollingerRevert{
		period:             period,
		stdMultiplier:      stdMult,
		useRSIConfirmation: useRSI,
		rsiPeriod:          rsiPeriod,
		rsiThreshold:       rsiThreshold,
		minBandwidthPct:    minBandwidth,
		stopLossPct:        stopLoss,
		takeProfitPct:      takeProfit,
		amount:             amount,
	}, nil
}

// Name returns "bollinger".
func (s *BollingerRevert) Name() string {
	return "bollinger"
}

// WarmupBars covers both the band period and the confirmation RSI.
func (s *BollingerRevert) WarmupBars() int {
	warmup := s.period
	if s.useRSIConfirmation && s.rsiPeriod+1 > warmup {
		warmup = s.rsiPeriod + 1
	}
	return warmup
}

// Evaluate applies the band entry/exit rules for one bar.
func (s *BollingerRevert) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	bands, err := indicator.Bollinger(ec.History.Closes, s.period, s.stdMultiplier)
	if err != nil {
		return nil, nil
	}
	px := ec.Bar.Close

	if ec.Position == nil {
		bandwidthPct := bands.Bandwidth.Mul(decimal.NewFromInt(100))
		if bandwidthPct.LessThan(s.minBandwidthPct) {
			return nil, nil
		}
		if px.GreaterThan(bands.Lower) {
			return nil, nil
		}
		if s.useRSIConfirmation {
			rsi, err := indicator.RSI(ec.History.Closes, s.rsiPeriod)
			if err != nil || rsi.GreaterThan(s.rsiThreshold) {
				return nil, nil
			}
		}
		notional := s.amount
		if notional.IsZero() {
			notional = ec.Cash
		}
		intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, notional)
		intent.Tag.Reason = "lower_band"
		return []domain.TradeIntent{intent}, nil
	}

	ret := ec.Position.UnrealizedReturn(px)
	exit := ""
	switch {
	case px.GreaterThanOrEqual(bands.Middle):
		exit = "middle_band"
	case !s.stopLossPct.IsZero() && ret.LessThanOrEqual(s.stopLossPct.Neg()):
		exit = "stop_loss"
	case !s.takeProfitPct.IsZero() && ret.GreaterThanOrEqual(s.takeProfitPct):
		exit = "take_profit"
	}
	if exit == "" {
		return nil, nil
	}
	intent := domain.QuantityIntent(ec.Bar.Symbol, domain.SideSell, ec.Position.Quantity)
	intent.Tag.Reason = exit
	return []domain.TradeIntent{intent}, nil
}
