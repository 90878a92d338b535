// Package backtest replays historical bars through a strategy against the
// simulated exchange and produces a fill ledger, an equity curve, and
// summary performance metrics. Runs are strictly sequential per bar and
// deterministic: intents raised on one bar execute at the next bar's open,
// so a strategy can never trade on a price it has not yet seen.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/exchange"
	"kairos/internal/rebalance"
	"kairos/internal/strategy"
)

// Spec is one fully resolved run: a configured strategy instance, the bars
// to replay, and the execution cost model.
type Spec struct {
	RunID          string
	StrategyID     string
	Strategy       strategy.Strategy
	Symbols        []string
	InitialCapital decimal.Decimal
	Bars           map[string][]domain.Bar
	Exchange       exchange.Config
	Rebalance      rebalance.Options
}

// Report is the complete output of one run.
type Report struct {
	RunID       string                  `json:"run_id"`
	StrategyID  string                  `json:"strategy_id"`
	Fills       []domain.Fill           `json:"fills"`
	EquityCurve []domain.EquitySnapshot `json:"equity_curve"`
	Summary     Summary                 `json:"summary"`
}

// Runner executes backtest specs.
type Runner struct {
	log *slog.Logger
}

// NewRunner creates a Runner that logs through the given logger.
func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Run replays the spec's bars through its strategy. It returns an error for
// invalid input, malformed data, cancellation, or an invariant violation in
// the exchange; in every error case the partial ledger is discarded.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Report, error) {
	if err := validate(spec); err != nil {
		return nil, err
	}

	timeline := buildTimeline(spec.Bars)
	sim := exchange.NewSimulator(spec.RunID, spec.InitialCapital, spec.Exchange)
	coord := rebalance.NewCoordinator(spec.Rebalance)
	warmup := spec.Strategy.WarmupBars()
	ledger := &cashLedger{cash: spec.InitialCapital}

	observer, _ := spec.Strategy.(strategy.Observer)
	allocator, isAllocator := spec.Strategy.(strategy.Allocator)

	histories := make(map[string]*strategy.History, len(spec.Symbols))
	for _, sym := range spec.Symbols {
		histories[sym] = &strategy.History{}
	}
	cursor := make(map[string]int, len(spec.Symbols))
	lastClose := make(map[string]decimal.Decimal, len(spec.Symbols))

	var (
		pending []domain.TradeIntent
		curve   []domain.EquitySnapshot
	)

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			r.log.Info("backtest cancelled",
				"run_id", spec.RunID, "at", ts, "discarded_intents", len(pending))
			return nil, fmt.Errorf("run %s: %w", spec.RunID, err)
		}

		current := barsAt(spec, cursor, ts)

		// Execute intents raised on the previous bar at this bar's open.
		// Fills reach the strategy before it is asked to evaluate the bar.
		var held []domain.TradeIntent
		for _, intent := range pending {
			bar, ok := current[intent.Symbol]
			if !ok {
				// The symbol has no bar today; the intent waits for its
				// next trading day.
				held = append(held, intent)
				continue
			}
			fill, err := sim.Fill(intent, bar)
			if err != nil {
				if errors.Is(err, errs.ErrRejected) {
					r.log.Debug("intent rejected", "run_id", spec.RunID, "symbol", intent.Symbol, "err", err)
					continue
				}
				return nil, err
			}
			ledger.apply(fill)
			if observer != nil {
				observer.OnFill(fill)
			}
		}
		pending = held

		for sym, bar := range current {
			h := histories[sym]
			h.Timestamps = append(h.Timestamps, bar.Timestamp)
			h.Opens = append(h.Opens, bar.Open)
			h.Highs = append(h.Highs, bar.High)
			h.Lows = append(h.Lows, bar.Low)
			h.Closes = append(h.Closes, bar.Close)
			lastClose[sym] = bar.Close
		}

		// The strategy is not consulted until every symbol has its warmup
		// bars of history.
		if isAllocator {
			if minHistory(histories) >= warmup {
				intents, err := r.evaluateAllocator(ctx, spec, allocator, coord, sim, histories, lastClose, ts)
				if err != nil {
					return nil, err
				}
				pending = append(pending, intents...)
			}
		} else if bar, ok := current[spec.Symbols[0]]; ok && len(histories[spec.Symbols[0]].Closes) >= warmup {
			ec := strategy.EvalContext{
				Bar:      bar,
				History:  *histories[spec.Symbols[0]],
				Position: sim.Position(spec.Symbols[0]),
				Cash:     sim.Cash(),
			}
			intents, err := spec.Strategy.Evaluate(ctx, ec)
			if err != nil {
				return nil, fmt.Errorf("run %s: evaluate %s at %s: %w", spec.RunID, spec.StrategyID, ts, err)
			}
			pending = append(pending, intents...)
		}

		snap := domain.EquitySnapshot{
			Timestamp:     ts,
			Cash:          sim.Cash(),
			PositionValue: sim.MarkToMarket(lastClose),
		}
		snap.TotalEquity = snap.Cash.Add(snap.PositionValue)
		if !snap.Cash.Equal(ledger.cash) {
			return nil, errs.NewInvariantViolation("cash",
				"simulator cash %s diverges from the fill ledger %s at %s",
				snap.Cash, ledger.cash, ts)
		}
		curve = append(curve, snap)
	}

	if len(pending) > 0 {
		r.log.Debug("discarding unexecuted intents at end of range",
			"run_id", spec.RunID, "count", len(pending))
	}

	if err := r.liquidate(spec, sim, ledger, lastClose, timeline[len(timeline)-1], observer); err != nil {
		return nil, err
	}
	if !sim.Cash().Equal(ledger.cash) {
		return nil, errs.NewInvariantViolation("cash",
			"post-liquidation cash %s diverges from the fill ledger %s",
			sim.Cash(), ledger.cash)
	}

	report := &Report{
		RunID:       spec.RunID,
		StrategyID:  spec.StrategyID,
		Fills:       sim.Fills(),
		EquityCurve: curve,
	}
	report.Summary = summarize(spec.InitialCapital, sim.Cash(), report.Fills, curve)
	r.log.Info("backtest finished",
		"run_id", spec.RunID,
		"strategy", spec.StrategyID,
		"bars", len(timeline),
		"trades", report.Summary.TradeCount,
		"final_equity", report.Summary.FinalEquity)
	return report, nil
}

// evaluateAllocator asks the allocator for target weights and, when a
// rebalance is due, turns them into intents priced off the current closes.
func (r *Runner) evaluateAllocator(
	ctx context.Context,
	spec Spec,
	allocator strategy.Allocator,
	coord *rebalance.Coordinator,
	sim *exchange.Simulator,
	histories map[string]*strategy.History,
	lastClose map[string]decimal.Decimal,
	ts time.Time,
) ([]domain.TradeIntent, error) {
	mc := strategy.MultiEvalContext{
		Timestamp: ts,
		Histories: make(map[string]strategy.History, len(histories)),
		Positions: sim.Positions(),
		Cash:      sim.Cash(),
		Equity:    sim.Equity(lastClose),
	}
	for sym, h := range histories {
		mc.Histories[sym] = *h
	}

	weights, due, err := allocator.TargetWeights(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("run %s: allocate %s at %s: %w", spec.RunID, spec.StrategyID, ts, err)
	}
	if !due {
		return nil, nil
	}
	targets := rebalance.NormalizeWeights(weights)
	return coord.Plan(targets, sim.Positions(), lastClose, sim.Cash(), mc.Equity), nil
}

// liquidate closes every remaining position at that symbol's final close so
// the run ends fully in cash.
func (r *Runner) liquidate(
	spec Spec,
	sim *exchange.Simulator,
	ledger *cashLedger,
	lastClose map[string]decimal.Decimal,
	ts time.Time,
	observer strategy.Observer,
) error {
	positions := sim.Positions()
	symbols := make([]string, 0, len(positions))
	for sym := range positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		pos := positions[sym]
		mark, ok := lastClose[sym]
		if !ok {
			mark = pos.AvgEntryPrice
		}
		intent := domain.QuantityIntent(sym, domain.SideSell, pos.Quantity)
		intent.Tag.Reason = "end_of_run"
		fill, err := sim.Fill(intent, domain.Bar{
			Symbol:    sym,
			Timestamp: ts,
			Open:      mark,
			High:      mark,
			Low:       mark,
			Close:     mark,
		})
		if err != nil {
			return err
		}
		ledger.apply(fill)
		if observer != nil {
			observer.OnFill(fill)
		}
	}
	return nil
}

// cashLedger accumulates the cash balance from the fill stream alone,
// separately from the simulator's own bookkeeping. Every snapshot compares
// the two, so a pricing or accounting divergence in either aborts the run.
type cashLedger struct {
	cash decimal.Decimal
}

func (l *cashLedger) apply(f domain.Fill) {
	notional := f.Price.Mul(f.Quantity)
	if f.Side == domain.SideBuy {
		l.cash = l.cash.Sub(notional).Sub(f.Commission)
		return
	}
	l.cash = l.cash.Add(notional).Sub(f.Commission)
}

// minHistory returns the shortest per-symbol history length.
func minHistory(histories map[string]*strategy.History) int {
	shortest := -1
	for _, h := range histories {
		if shortest == -1 || len(h.Closes) < shortest {
			shortest = len(h.Closes)
		}
	}
	if shortest < 0 {
		return 0
	}
	return shortest
}

func validate(spec Spec) error {
	if spec.Strategy == nil {
		return errs.NewConfigError("strategy_id", "no strategy instance")
	}
	if spec.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return errs.NewConfigError("initial_capital", "must be positive, got %s", spec.InitialCapital)
	}
	if len(spec.Symbols) == 0 {
		return errs.NewConfigError("symbols", "at least one symbol is required")
	}
	for _, sym := range spec.Symbols {
		bars := spec.Bars[sym]
		if len(bars) == 0 {
			return errs.NewDataError(sym, "no bars in range")
		}
		for i := 1; i < len(bars); i++ {
			if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
				return errs.NewDataError(sym, "bars out of order at %s", bars[i].Timestamp)
			}
		}
	}
	return nil
}

// buildTimeline merges all per-symbol bar timestamps into one sorted,
// deduplicated sequence.
func buildTimeline(bars map[string][]domain.Bar) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, series := range bars {
		for _, bar := range series {
			if _, ok := seen[bar.Timestamp]; !ok {
				seen[bar.Timestamp] = struct{}{}
				out = append(out, bar.Timestamp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// barsAt advances each symbol's cursor and returns the bars trading at ts.
func barsAt(spec Spec, cursor map[string]int, ts time.Time) map[string]domain.Bar {
	out := make(map[string]domain.Bar, len(spec.Symbols))
	for _, sym := range spec.Symbols {
		series := spec.Bars[sym]
		i := cursor[sym]
		if i < len(series) && series[i].Timestamp.Equal(ts) {
			out[sym] = series[i]
			cursor[sym] = i + 1
		}
	}
	return out
}
