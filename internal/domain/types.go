// Package domain defines the core value types shared across the kairos
// backtesting and execution core: bars, positions, trade intents, fills, and
// equity snapshots. All prices, quantities, and money amounts are
// shopspring/decimal values; float64 never carries money.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies the bar interval.
type Timeframe string

const (
	Timeframe1Day Timeframe = "1Day"
	Timeframe1Min Timeframe = "1Min"
)

// Side is the direction of a trade intent or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Bar is one OHLCV observation for a symbol at a fixed timeframe. Bars are
// immutable and strictly time-ordered per symbol; the core never reorders or
// mutates them.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Position is the holding state for one symbol. It is owned exclusively by
// the simulated exchange (or the live account model), mutated only on fill,
// and removed when quantity returns to exactly zero. StageCount tracks the
// staged-entry level for split strategies.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	StageCount    int             `json:"stage_count"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// MarketValue returns the mark-to-market value of the position at the given
// price.
func (p *Position) MarketValue(mark decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(mark)
}

// UnrealizedPnL returns the open profit at the given mark price.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return mark.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

// UnrealizedReturn returns the fractional open return at the given mark
// price, zero when the position has no cost basis.
func (p *Position) UnrealizedReturn(mark decimal.Decimal) decimal.Decimal {
	if p.AvgEntryPrice.IsZero() {
		return decimal.Zero
	}
	return mark.Sub(p.AvgEntryPrice).Div(p.AvgEntryPrice)
}

// IntentTag carries strategy-specific metadata on a trade intent, such as the
// staged-entry level and its trigger/target rates.
type IntentTag struct {
	Level       int
	TargetRate  decimal.Decimal
	TriggerRate *decimal.Decimal // nil for level 1 entries
	Reason      string
}

// TradeIntent is a request to trade produced by one strategy evaluation.
// Exactly one of Quantity or Notional is set: quantity-sized intents state
// how many units to trade, notional-sized intents state how much money to
// deploy and let the exchange derive the quantity. Intents are ephemeral:
// consumed immediately by the exchange or discarded if rejected.
type TradeIntent struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Notional decimal.Decimal
	Tag      IntentTag
}

// QuantityIntent builds a quantity-sized trade intent.
func QuantityIntent(symbol string, side Side, qty decimal.Decimal) TradeIntent {
	return TradeIntent{Symbol: symbol, Side: side, Quantity: qty}
}

// NotionalIntent builds a notional-sized trade intent.
func NotionalIntent(symbol string, side Side, notional decimal.Decimal) TradeIntent {
	return TradeIntent{Symbol: symbol, Side: side, Notional: notional}
}

// IsNotional reports whether the intent is sized by money rather than units.
func (t TradeIntent) IsNotional() bool {
	return t.Quantity.IsZero() && !t.Notional.IsZero()
}

// Fill is one executed trade. Fills form an append-only ledger and are never
// mutated after creation. PositionAfter records the position quantity that
// resulted from applying the fill.
type Fill struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Commission    decimal.Decimal `json:"commission"`
	Slippage      decimal.Decimal `json:"slippage"`
	Timestamp     time.Time       `json:"timestamp"`
	Level         int             `json:"level,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	PositionAfter decimal.Decimal `json:"position_after"`
}

// Notional returns price times quantity for the fill.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

// EquitySnapshot is one point on the equity curve, appended once per
// processed bar. TotalEquity always equals Cash plus PositionValue; the
// runner checks the identity at every step.
type EquitySnapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"position_value"`
	TotalEquity   decimal.Decimal `json:"total_equity"`
}

// AccountInfo is a snapshot of account-level financial state, used by the
// live strategy context.
type AccountInfo struct {
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}
