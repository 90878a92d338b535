package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*Grid)(nil)
var _ strategy.Observer = (*Grid)(nil)

// gridLevel is one rung of the ladder. A rung is armed while unfilled; once
// bought it holds its executed quantity until the paired sell.
type gridLevel struct {
	buyPrice  decimal.Decimal
	sellPrice decimal.Decimal
	filled    bool
	quantity  decimal.Decimal
}

// Grid maintains a ladder of buy levels below a center price. Each level buys
// a fixed notional when the close crosses under its price and sells that
// level's quantity when the close recovers above its paired sell price.
type Grid struct {
	centerPrice    decimal.Decimal // zero means anchor on the first bar's close
	spacingPct     decimal.Decimal
	levelCount     int
	amountPerLevel decimal.Decimal
	levels         []gridLevel
}

// NewGrid builds the strategy from run parameters.
func NewGrid(params strategy.Params) (strategy.Strategy, error) {
	center, err := params.Decimal("center_price", decimal.Zero)
	if err != nil {
		return nil, err
	}
	spacing, err := params.Decimal("spacing_pct", decimal.NewFromFloat(0.02))
	if err != nil {
		return nil, err
	}
	count, err := params.Int("levels", 5)
	if err != nil {
		return nil, err
	}
	amount, err := params.Decimal("amount_per_level", decimal.Zero)
	if err != nil {
		return nil, err
	}

	if center.IsNegative() {
		return nil, errs.NewConfigError("center_price", "must not be negative")
	}
	if spacing.LessThanOrEqual(decimal.Zero) || spacing.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errs.NewConfigError("spacing_pct", "must lie in (0, 1), got %s", spacing)
	}
	if count <= 0 || count > 50 {
		return nil, errs.NewConfigError("levels", "must lie in [1, 50], got %d", count)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.NewConfigError("amount_per_level", "must be positive")
	}

	g := &Grid{
		centerPrice:    center,
		spacingPct:     spacing,
		levelCount:     count,
		amountPerLevel: amount,
	}
	if !center.IsZero() {
		g.buildLadder(center)
	}
	return g, nil
}

// buildLadder places level i at center·(1 − i·spacing) with the paired sell
// one spacing above the buy.
func (g *Grid) buildLadder(center decimal.Decimal) {
	g.levels = make([]gridLevel, g.levelCount)
	one := decimal.NewFromInt(1)
	for i := range g.levels {
		step := g.spacingPct.Mul(decimal.NewFromInt(int64(i + 1)))
		buy := center.Mul(one.Sub(step))
		g.levels[i] = gridLevel{
			buyPrice:  buy,
			sellPrice: buy.Mul(one.Add(g.spacingPct)),
		}
	}
}

// Name returns "grid".
func (g *Grid) Name() string {
	return "grid"
}

// WarmupBars returns one: the ladder anchors on the first bar when no center
// price is configured.
func (g *Grid) WarmupBars() int {
	return 1
}

// Evaluate walks the ladder and emits at most one intent per rung per bar.
func (g *Grid) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	if g.levels == nil {
		g.buildLadder(ec.Bar.Close)
		return nil, nil
	}

	px := ec.Bar.Close
	var intents []domain.TradeIntent
	for i := range g.levels {
		lvl := &g.levels[i]
		if !lvl.filled && px.LessThanOrEqual(lvl.buyPrice) {
			intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, g.amountPerLevel)
			intent.Tag.Level = i + 1
			intent.Tag.Reason = "grid_buy"
			intents = append(intents, intent)
		} else if lvl.filled && px.GreaterThanOrEqual(lvl.sellPrice) && !lvl.quantity.IsZero() {
			intent := domain.QuantityIntent(ec.Bar.Symbol, domain.SideSell, lvl.quantity)
			intent.Tag.Level = i + 1
			intent.Tag.Reason = "grid_sell"
			intents = append(intents, intent)
		}
	}
	return intents, nil
}

// OnFill binds executed quantities to their rungs so paired sells size
// exactly to what each rung bought.
func (g *Grid) OnFill(fill domain.Fill) {
	if fill.Level < 1 || fill.Level > len(g.levels) {
		return
	}
	lvl := &g.levels[fill.Level-1]
	if fill.Side == domain.SideBuy {
		lvl.filled = true
		lvl.quantity = fill.Quantity
		return
	}
	lvl.filled = false
	lvl.quantity = decimal.Zero
}
