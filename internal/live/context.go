// Package live holds the shared mutable state a strategy consults while
// trading against a real market: the latest account snapshot, open
// positions, momentum scores, and in-flight order markers. Reads are
// concurrent; every accessor copies out so callers never hold a reference
// into guarded state.
package live

import (
	"sync"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/indicator"
)

// Context is the live strategy context. The zero value is not usable; create
// one with NewContext.
type Context struct {
	mu        sync.RWMutex
	account   domain.AccountInfo
	positions map[string]domain.Position
	scores    map[string]decimal.Decimal
	pending   map[string]bool
}

// NewContext creates an empty live context.
func NewContext() *Context {
	return &Context{
		positions: make(map[string]domain.Position),
		scores:    make(map[string]decimal.Decimal),
		pending:   make(map[string]bool),
	}
}

// SetAccount replaces the account snapshot.
func (c *Context) SetAccount(account domain.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = account
}

// Account returns the latest account snapshot.
func (c *Context) Account() domain.AccountInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// ApplyFill folds a fill into the tracked positions exactly the way the
// simulated exchange does: buys extend the weighted-average cost basis,
// sells realize PnL and remove the position at zero quantity. The fill's
// pending marker is cleared.
func (c *Context) ApplyFill(fill domain.Fill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, fill.Symbol)

	pos, held := c.positions[fill.Symbol]
	switch fill.Side {
	case domain.SideBuy:
		if !held {
			pos = domain.Position{
				Symbol:        fill.Symbol,
				Quantity:      fill.Quantity,
				AvgEntryPrice: fill.Price,
				OpenedAt:      fill.Timestamp,
			}
		} else {
			oldCost := pos.AvgEntryPrice.Mul(pos.Quantity)
			newQty := pos.Quantity.Add(fill.Quantity)
			pos.AvgEntryPrice = oldCost.Add(fill.Price.Mul(fill.Quantity)).Div(newQty)
			pos.Quantity = newQty
		}
		if fill.Level > pos.StageCount {
			pos.StageCount = fill.Level
		}
		c.positions[fill.Symbol] = pos
	case domain.SideSell:
		if !held {
			return
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(fill.RealizedPnL)
		pos.Quantity = pos.Quantity.Sub(fill.Quantity)
		if pos.Quantity.LessThanOrEqual(decimal.Zero) {
			delete(c.positions, fill.Symbol)
			return
		}
		c.positions[fill.Symbol] = pos
	}
}

// Position returns the tracked position for symbol, or nil when flat.
func (c *Context) Position(symbol string) *domain.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[symbol]
	if !ok {
		return nil
	}
	return &pos
}

// Positions returns a copy of all tracked positions keyed by symbol.
func (c *Context) Positions() map[string]domain.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Position, len(c.positions))
	for sym, pos := range c.positions {
		out[sym] = pos
	}
	return out
}

// UpdateScores replaces the stored momentum scores.
func (c *Context) UpdateScores(scores []indicator.Score) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores = make(map[string]decimal.Decimal, len(scores))
	for _, s := range scores {
		c.scores[s.Symbol] = s.Score
	}
}

// Score returns the momentum score for symbol.
func (c *Context) Score(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.scores[symbol]
	return score, ok
}

// MarkPending records that an order for symbol is in flight. It returns
// false when a pending order already exists, so callers never double-submit.
func (c *Context) MarkPending(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[symbol] {
		return false
	}
	c.pending[symbol] = true
	return true
}

// ClearPending removes the in-flight marker for symbol.
func (c *Context) ClearPending(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, symbol)
}

// HasPendingOrder reports whether an order for symbol is in flight.
func (c *Context) HasPendingOrder(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending[symbol]
}
