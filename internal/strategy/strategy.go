// Package strategy defines the evaluation contract all trading strategies
// implement, a Registry of strategy factories keyed by strategy ID, and typed
// parameter parsing with validation.
package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
)

// History is the trailing price window for one symbol, oldest first. The
// current bar is always the last element, so indicators computed over it see
// data up to and including the bar under evaluation, never beyond it.
type History struct {
	Timestamps []time.Time
	Opens      []decimal.Decimal
	Highs      []decimal.Decimal
	Lows       []decimal.Decimal
	Closes     []decimal.Decimal
}

// Len returns the number of bars in the window.
func (h History) Len() int {
	return len(h.Closes)
}

// EvalContext is everything a single-asset strategy may consult when
// evaluating one bar: the bar itself, the trailing window, its own position
// (nil when flat), and available cash.
type EvalContext struct {
	Bar      domain.Bar
	History  History
	Position *domain.Position
	Cash     decimal.Decimal
}

// MultiEvalContext is the evaluation input for multi-asset strategies:
// aligned trailing windows per symbol, open positions, cash, and total
// equity as of the current bar.
type MultiEvalContext struct {
	Timestamp time.Time
	Histories map[string]History
	Positions map[string]domain.Position
	Cash      decimal.Decimal
	Equity    decimal.Decimal
}

// Strategy is the uniform execution contract. Implementations are stateful
// over a run (FSMs, fill tracking) but deterministic: the same bar sequence
// produces the same intents.
type Strategy interface {
	// Name returns the strategy's registry ID.
	Name() string

	// WarmupBars returns how many bars of history the strategy needs before
	// it can emit intents. The runner still calls Evaluate during warmup;
	// implementations return no intents when data is insufficient.
	WarmupBars() int

	// Evaluate consumes the current bar and returns zero or more trade
	// intents. Insufficient indicator history is not an error; it yields an
	// empty result.
	Evaluate(ctx context.Context, ec EvalContext) ([]domain.TradeIntent, error)
}

// Allocator is implemented in addition to Strategy by multi-asset strategies.
// Instead of per-bar intents they periodically produce target portfolio
// weights, which the rebalancing coordinator turns into intents.
type Allocator interface {
	// Symbols returns the universe the allocator trades, canary and
	// defensive assets included.
	Symbols() []string

	// TargetWeights returns the desired portfolio weights and whether a
	// rebalance should be evaluated now. When the bool is false the weights
	// are ignored.
	TargetWeights(ctx context.Context, mc MultiEvalContext) (map[string]decimal.Decimal, bool, error)
}

// Observer is optionally implemented by strategies that need to see their
// own fills, e.g. to advance a staged-entry state machine.
type Observer interface {
	OnFill(fill domain.Fill)
}

// Factory builds a configured strategy instance from raw run parameters.
// Factories validate and return *errs.ConfigError on bad values.
type Factory func(params Params) (Strategy, error)

// Registry holds strategy factories keyed by strategy ID.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given strategy ID.
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// Create instantiates the strategy registered under id with the given
// parameters.
func (r *Registry) Create(id string, params Params) (Strategy, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, errs.NewConfigError("strategy_id", "unknown strategy %q", id)
	}
	return f(params)
}

// Contains reports whether a factory is registered under id.
func (r *Registry) Contains(id string) bool {
	_, ok := r.factories[id]
	return ok
}

// List returns a sorted slice of all registered strategy IDs.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
