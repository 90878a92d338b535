// Package rebalance turns target portfolio weights into trade intents. The
// coordinator compares targets against current mark-to-market weights and
// emits an intent only for symbols whose drift exceeds the configured
// threshold, sells before buys, so multi-asset strategies never trade more
// than their drift requires.
package rebalance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/util"
)

// Options tunes the drift-to-intent translation.
type Options struct {
	// Threshold is the minimum absolute weight drift that triggers a trade.
	Threshold decimal.Decimal
	// MinTradeAmount suppresses intents below this notional; zero disables.
	MinTradeAmount decimal.Decimal
}

// DefaultOptions uses a 3% drift threshold.
func DefaultOptions() Options {
	return Options{Threshold: decimal.NewFromFloat(0.03)}
}

// Coordinator plans rebalance trades.
type Coordinator struct {
	opts Options
}

// NewCoordinator creates a Coordinator with the given options.
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{opts: opts}
}

// NormalizeWeights scales weights to sum to one. Zero or negative entries
// are dropped; an empty or all-zero map comes back empty.
func NormalizeWeights(weights map[string]decimal.Decimal) map[string]decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			total = total.Add(w)
		}
	}
	out := make(map[string]decimal.Decimal, len(weights))
	if total.IsZero() {
		return out
	}
	for sym, w := range weights {
		if w.IsPositive() {
			out[sym] = w.Div(total)
		}
	}
	return out
}

// ShouldRebalance reports whether enough calendar months have passed since
// the last rebalance. A zero last time always triggers, and intervals below
// one month are treated as monthly.
func ShouldRebalance(now, last time.Time, intervalMonths int) bool {
	if last.IsZero() {
		return true
	}
	if intervalMonths <= 0 {
		intervalMonths = 1
	}
	return util.MonthsBetween(last, now) >= intervalMonths
}

// Plan computes the intents that close weight drift against the targets.
// Positions absent from the target map are sold in full. Sells precede buys
// so their proceeds can fund the buys; within each phase symbols go in
// lexical order for determinism. Buy quantities are floored and sell
// quantities ceiled, so rounding never overspends or oversells.
func (c *Coordinator) Plan(
	targets map[string]decimal.Decimal,
	positions map[string]domain.Position,
	prices map[string]decimal.Decimal,
	cash decimal.Decimal,
	equity decimal.Decimal,
) []domain.TradeIntent {
	if equity.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	type plannedTrade struct {
		symbol   string
		side     domain.Side
		quantity decimal.Decimal
		notional decimal.Decimal
	}
	var sells, buys []plannedTrade

	for _, sym := range sortedSymbols(targets, positions) {
		price, ok := prices[sym]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			// No mark, no trade: the symbol keeps its current weight.
			continue
		}

		current := decimal.Zero
		if pos, held := positions[sym]; held {
			current = pos.Quantity.Mul(price).Div(equity)
		}
		target := targets[sym] // zero when absent: full exit

		drift := current.Sub(target)
		if drift.Abs().LessThanOrEqual(c.opts.Threshold) {
			continue
		}

		notional := drift.Abs().Mul(equity)
		if !c.opts.MinTradeAmount.IsZero() && notional.LessThan(c.opts.MinTradeAmount) {
			continue
		}

		if drift.IsPositive() {
			qty := notional.Div(price).Ceil()
			if pos, held := positions[sym]; held {
				if target.IsZero() {
					qty = pos.Quantity
				} else if qty.GreaterThan(pos.Quantity) {
					qty = pos.Quantity
				}
			}
			sells = append(sells, plannedTrade{symbol: sym, side: domain.SideSell, quantity: qty})
		} else {
			buys = append(buys, plannedTrade{symbol: sym, side: domain.SideBuy, notional: notional})
		}
	}

	// Scale buys down to the cash available after the sells settle.
	available := cash
	for _, s := range sells {
		price := prices[s.symbol]
		available = available.Add(s.quantity.Mul(price))
	}

	intents := make([]domain.TradeIntent, 0, len(sells)+len(buys))
	for _, s := range sells {
		intent := domain.QuantityIntent(s.symbol, domain.SideSell, s.quantity)
		intent.Tag.Reason = "rebalance"
		intents = append(intents, intent)
	}
	totalBuy := decimal.Zero
	for _, b := range buys {
		totalBuy = totalBuy.Add(b.notional)
	}
	scale := decimal.NewFromInt(1)
	if totalBuy.GreaterThan(available) && totalBuy.IsPositive() {
		scale = available.Div(totalBuy)
	}
	for _, b := range buys {
		notional := b.notional.Mul(scale)
		if notional.LessThanOrEqual(decimal.Zero) {
			continue
		}
		intent := domain.NotionalIntent(b.symbol, domain.SideBuy, notional)
		intent.Tag.Reason = "rebalance"
		intents = append(intents, intent)
	}
	return intents
}

// sortedSymbols returns the lexical union of target and position symbols.
func sortedSymbols(targets map[string]decimal.Decimal, positions map[string]domain.Position) []string {
	seen := make(map[string]bool, len(targets)+len(positions))
	for sym := range targets {
		seen[sym] = true
	}
	for sym := range positions {
		seen[sym] = true
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
