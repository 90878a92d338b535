package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
)

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// Summary holds the performance metrics of one run. Monetary values stay
// decimal; the Sharpe ratio is a pure statistic and uses float64.
type Summary struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	TradeCount     int             `json:"trade_count"`
	WinRate        decimal.Decimal `json:"win_rate"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
	ProfitFactor   decimal.Decimal `json:"profit_factor"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
}

// summarize computes the run metrics from the final liquidated cash, the
// fill ledger, and the equity curve.
func summarize(
	initial decimal.Decimal,
	finalEquity decimal.Decimal,
	fills []domain.Fill,
	curve []domain.EquitySnapshot,
) Summary {
	hundred := decimal.NewFromInt(100)
	s := Summary{
		InitialCapital: initial,
		FinalEquity:    finalEquity,
		TradeCount:     len(fills),
		TotalReturnPct: finalEquity.Sub(initial).Div(initial).Mul(hundred),
	}

	// Win rate and profit factor come from realized round trips, i.e. the
	// sell side of the ledger.
	var wins, losses int
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, fill := range fills {
		if fill.Side != domain.SideSell {
			continue
		}
		switch {
		case fill.RealizedPnL.GreaterThan(decimal.Zero):
			wins++
			grossProfit = grossProfit.Add(fill.RealizedPnL)
		case fill.RealizedPnL.LessThan(decimal.Zero):
			losses++
			grossLoss = grossLoss.Add(fill.RealizedPnL.Neg())
		}
	}
	if wins+losses > 0 {
		s.WinRate = decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(wins + losses))).Mul(hundred)
	}
	if grossLoss.GreaterThan(decimal.Zero) {
		s.ProfitFactor = grossProfit.Div(grossLoss)
	} else {
		// No losing trades: report the gross profit itself rather than an
		// unrepresentable infinity.
		s.ProfitFactor = grossProfit
	}

	s.MaxDrawdownPct = maxDrawdownPct(curve)
	s.SharpeRatio = sharpeRatio(curve)
	return s
}

// maxDrawdownPct returns the largest peak-to-trough equity decline as a
// positive percentage.
func maxDrawdownPct(curve []domain.EquitySnapshot) decimal.Decimal {
	maxDD := decimal.Zero
	peak := decimal.Zero
	for _, snap := range curve {
		if snap.TotalEquity.GreaterThan(peak) {
			peak = snap.TotalEquity
		}
		if peak.LessThanOrEqual(decimal.Zero) {
			continue
		}
		dd := peak.Sub(snap.TotalEquity).Div(peak)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD.Mul(decimal.NewFromInt(100))
}

// sharpeRatio annualizes the mean daily return over its standard deviation.
// Fewer than two returns, or a flat curve, yields zero.
func sharpeRatio(curve []domain.EquitySnapshot) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalEquity.InexactFloat64()
		if prev == 0 {
			return 0
		}
		returns = append(returns, curve[i].TotalEquity.InexactFloat64()/prev-1)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
