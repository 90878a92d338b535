// Package exchange provides the simulated exchange used by backtests. It is
// the single writer of cash and position state during a run: strategies
// propose trade intents, the simulator prices them against the execution
// bar, applies slippage and commission, and either produces a fill or a
// rejection. It never lets cash or a position quantity go negative.
package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
)

// Config holds the execution cost model for a run.
type Config struct {
	Commission decimal.Decimal // proportional fee, e.g. 0.001
	Slippage   decimal.Decimal // proportional price degradation, e.g. 0.0005
}

// DefaultConfig returns the standard cost model.
func DefaultConfig() Config {
	return Config{
		Commission: decimal.NewFromFloat(0.001),
		Slippage:   decimal.NewFromFloat(0.0005),
	}
}

// Simulator executes trade intents against bars and owns the resulting cash,
// positions, and fill ledger for one run.
type Simulator struct {
	cfg       Config
	runID     string
	cash      decimal.Decimal
	positions map[string]*domain.Position
	fills     []domain.Fill
}

// NewSimulator creates a simulator holding initialCapital in cash.
func NewSimulator(runID string, initialCapital decimal.Decimal, cfg Config) *Simulator {
	return &Simulator{
		cfg:       cfg,
		runID:     runID,
		cash:      initialCapital,
		positions: make(map[string]*domain.Position),
	}
}

// Fill executes one intent against the execution bar. The price basis is the
// bar's open, degraded by slippage against the trade's side. Notional-sized
// buys clamp to available cash; an explicit-quantity intent that cannot be
// funded or covered is an invariant violation and aborts the run.
func (s *Simulator) Fill(intent domain.TradeIntent, execBar domain.Bar) (domain.Fill, error) {
	if intent.Symbol != execBar.Symbol {
		return domain.Fill{}, errs.NewInvariantViolation("fill",
			"intent symbol %q executed against bar for %q", intent.Symbol, execBar.Symbol)
	}
	switch intent.Side {
	case domain.SideBuy:
		return s.fillBuy(intent, execBar)
	case domain.SideSell:
		return s.fillSell(intent, execBar)
	default:
		return domain.Fill{}, errs.NewInvariantViolation("fill", "unknown side %q", intent.Side)
	}
}

func (s *Simulator) fillBuy(intent domain.TradeIntent, execBar domain.Bar) (domain.Fill, error) {
	one := decimal.NewFromInt(1)
	price := execBar.Open.Mul(one.Add(s.cfg.Slippage))
	if price.LessThanOrEqual(decimal.Zero) {
		return domain.Fill{}, fmt.Errorf("%w: non-positive execution price for %s", errs.ErrRejected, intent.Symbol)
	}

	// Cost per unit including commission.
	unitCost := price.Mul(one.Add(s.cfg.Commission))

	var qty decimal.Decimal
	if intent.IsNotional() {
		budget := intent.Notional
		if budget.GreaterThan(s.cash) {
			budget = s.cash
		}
		qty = budget.Div(unitCost).Floor()
		if qty.LessThanOrEqual(decimal.Zero) {
			return domain.Fill{}, fmt.Errorf("%w: notional %s buys zero units of %s at %s",
				errs.ErrRejected, intent.Notional, intent.Symbol, price)
		}
	} else {
		qty = intent.Quantity
		if qty.LessThanOrEqual(decimal.Zero) {
			return domain.Fill{}, fmt.Errorf("%w: non-positive buy quantity for %s", errs.ErrRejected, intent.Symbol)
		}
		if unitCost.Mul(qty).GreaterThan(s.cash) {
			return domain.Fill{}, errs.NewInvariantViolation("buy",
				"quantity %s of %s costs %s with only %s cash available",
				qty, intent.Symbol, unitCost.Mul(qty), s.cash)
		}
	}

	gross := price.Mul(qty)
	commission := gross.Mul(s.cfg.Commission)
	total := gross.Add(commission)
	if total.GreaterThan(s.cash) {
		return domain.Fill{}, errs.NewInvariantViolation("buy",
			"fill cost %s exceeds cash %s for %s", total, s.cash, intent.Symbol)
	}

	s.cash = s.cash.Sub(total)
	pos := s.applyBuy(intent, price, qty, execBar.Timestamp)

	fill := s.record(intent, price, qty, commission, execBar)
	fill.PositionAfter = pos.Quantity
	s.fills = append(s.fills, fill)
	return fill, nil
}

func (s *Simulator) fillSell(intent domain.TradeIntent, execBar domain.Bar) (domain.Fill, error) {
	pos, ok := s.positions[intent.Symbol]
	if !ok {
		return domain.Fill{}, errs.NewInvariantViolation("sell",
			"no position in %s", intent.Symbol)
	}

	one := decimal.NewFromInt(1)
	price := execBar.Open.Mul(one.Sub(s.cfg.Slippage))

	qty := intent.Quantity
	if intent.IsNotional() {
		if price.LessThanOrEqual(decimal.Zero) {
			return domain.Fill{}, fmt.Errorf("%w: non-positive execution price for %s", errs.ErrRejected, intent.Symbol)
		}
		qty = intent.Notional.Div(price).Ceil()
		if qty.GreaterThan(pos.Quantity) {
			qty = pos.Quantity
		}
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.Fill{}, fmt.Errorf("%w: non-positive sell quantity for %s", errs.ErrRejected, intent.Symbol)
	}
	if qty.GreaterThan(pos.Quantity) {
		return domain.Fill{}, errs.NewInvariantViolation("sell",
			"quantity %s exceeds position %s in %s", qty, pos.Quantity, intent.Symbol)
	}

	gross := price.Mul(qty)
	commission := gross.Mul(s.cfg.Commission)
	proceeds := gross.Sub(commission)

	s.cash = s.cash.Add(proceeds)
	pnl := price.Sub(pos.AvgEntryPrice).Mul(qty).Sub(commission)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.Quantity = pos.Quantity.Sub(qty)

	fill := s.record(intent, price, qty, commission, execBar)
	fill.RealizedPnL = pnl
	fill.PositionAfter = pos.Quantity
	s.fills = append(s.fills, fill)

	// A position disappears when its quantity returns to exactly zero.
	if pos.Quantity.IsZero() {
		delete(s.positions, intent.Symbol)
	}
	return fill, nil
}

// applyBuy folds a buy into the position with a weighted-average cost basis.
func (s *Simulator) applyBuy(intent domain.TradeIntent, price, qty decimal.Decimal, ts time.Time) *domain.Position {
	pos, ok := s.positions[intent.Symbol]
	if !ok {
		pos = &domain.Position{
			Symbol:        intent.Symbol,
			Quantity:      qty,
			AvgEntryPrice: price,
			OpenedAt:      ts,
		}
		s.positions[intent.Symbol] = pos
	} else {
		oldCost := pos.AvgEntryPrice.Mul(pos.Quantity)
		newQty := pos.Quantity.Add(qty)
		pos.AvgEntryPrice = oldCost.Add(price.Mul(qty)).Div(newQty)
		pos.Quantity = newQty
	}
	if intent.Tag.Level > pos.StageCount {
		pos.StageCount = intent.Tag.Level
	}
	return pos
}

func (s *Simulator) record(intent domain.TradeIntent, price, qty, commission decimal.Decimal, execBar domain.Bar) domain.Fill {
	return domain.Fill{
		ID:         uuid.NewString(),
		RunID:      s.runID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Slippage:   price.Sub(execBar.Open).Abs().Mul(qty),
		Timestamp:  execBar.Timestamp,
		Level:      intent.Tag.Level,
		Reason:     intent.Tag.Reason,
	}
}

// Cash returns the current cash balance.
func (s *Simulator) Cash() decimal.Decimal {
	return s.cash
}

// Position returns a copy of the position for symbol, or nil when flat.
func (s *Simulator) Position(symbol string) *domain.Position {
	pos, ok := s.positions[symbol]
	if !ok {
		return nil
	}
	cp := *pos
	return &cp
}

// Positions returns a copy of all open positions keyed by symbol.
func (s *Simulator) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(s.positions))
	for sym, pos := range s.positions {
		out[sym] = *pos
	}
	return out
}

// Fills returns the append-only fill ledger in execution order.
func (s *Simulator) Fills() []domain.Fill {
	return s.fills
}

// MarkToMarket values all open positions at the given prices. Symbols
// without a price mark at their average entry.
func (s *Simulator) MarkToMarket(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for sym, pos := range s.positions {
		mark, ok := prices[sym]
		if !ok {
			mark = pos.AvgEntryPrice
		}
		total = total.Add(pos.Quantity.Mul(mark))
	}
	return total
}

// Equity returns cash plus the marked value of all positions.
func (s *Simulator) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	return s.cash.Add(s.MarkToMarket(prices))
}
