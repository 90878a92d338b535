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
var _ strategy.Strategy = (*RSIRevert)(nil)

// RSIRevert is a mean-reversion strategy: it buys when RSI drops to the
// oversold bound and exits on the overbought bound, on a return to neutral,
// or on a stop-loss/take-profit threshold.
type RSIRevert struct {
	period        int
	oversold      decimal.Decimal
	overbought    decimal.Decimal
	exitOnNeutral bool
	stopLossPct   decimal.Decimal // positive fraction; zero disables
	takeProfitPct decimal.Decimal // positive fraction; zero disables
	amount        decimal.Decimal
}

// NewRSIRevert builds the strategy from run parameters.
func NewRSIRevert(params strategy.Params) (strategy.Strategy, error) {
	period, err := params.Int("period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := params.Decimal("oversold", decimal.NewFromInt(30))
	if err != nil {
		return nil, err
	}
	overbought, err := params.Decimal("overbought", decimal.NewFromInt(70))
	if err != nil {
		return nil, err
	}
	exitOnNeutral, err := params.Bool("exit_on_neutral", false)
	if err != nil {
		return nil, err
	}
	stopLoss, err := params.Decimal("stop_loss_pct", decimal.Zero)
	if err != nil {
		return nil, err
	}
	takeProfit, err := params.Decimal("take_profit_pct", decimal.Zero)
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
	if oversold.GreaterThanOrEqual(overbought) {
		return nil, errs.NewConfigError("oversold", "must be below overbought %s, got %s", overbought, oversold)
	}
	if oversold.IsNegative() || overbought.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errs.NewConfigError("overbought", "RSI bounds must lie within [0, 100]")
	}
	if stopLoss.IsNegative() || takeProfit.IsNegative() {
		return nil, errs.NewConfigError("stop_loss_pct", "stop/take-profit must not be negative")
	}

	return &RSIRevert{
		period:        period,
		oversold:      oversold,
		overbought:    overbought,
		exitOnNeutral: exitOnNeutral,
		stopLossPct:   stopLoss,
		takeProfitPct: takeProfit,
		amount:        amount,
	}, nil
}

// Name returns "rsi".
func (s *RSIRevert) Name() string {
	return "rsi"
}

// WarmupBars returns the RSI period plus one bar.
func (s *RSIRevert) WarmupBars() int {
	return s.period + 1
}

var rsiNeutral = decimal.NewFromInt(50)

// Evaluate emits an entry at the oversold bound and exits per the configured
// rules.
func (s *RSIRevert) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	rsi, err := indicator.RSI(ec.History.Closes, s.period)
	if err != nil {
		return nil, nil
	}

	if ec.Position == nil {
		if rsi.LessThanOrEqual(s.oversold) {
			notional := s.amount
			if notional.IsZero() {
				notional = ec.Cash
			}
			intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, notional)
			intent.Tag.Reason = "oversold"
			return []domain.TradeIntent{intent}, nil
		}
		return nil, nil
	}

	ret := ec.Position.UnrealizedReturn(ec.Bar.Close)
	exit := ""
	switch {
	case rsi.GreaterThanOrEqual(s.overbought):
		exit = "overbought"
	case s.exitOnNeutral && rsi.GreaterThanOrEqual(rsiNeutral):
		exit = "neutral"
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
