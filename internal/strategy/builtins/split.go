package builtins

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/strategy"
	"kairos/internal/util"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*MagicSplit)(nil)
var _ strategy.Observer = (*MagicSplit)(nil)

// SplitLevel is the configuration for one rung of a staged-entry ladder.
// TargetRate is the take-profit return for the rung; TriggerRate is the
// drawdown on the previous rung that arms this one (nil for level 1, which
// enters unconditionally).
type SplitLevel struct {
	TargetRate   decimal.Decimal
	TriggerRate  *decimal.Decimal
	InvestAmount decimal.Decimal
}

// splitLevelState is the mutable side of one rung: whether it is held, at
// what price and size, and when it last sold (for the same-day rule).
type splitLevelState struct {
	bought     bool
	entryPrice decimal.Decimal
	quantity   decimal.Decimal
	lastSold   time.Time
}

// MagicSplit scales into a position across numbered levels. Level 1 enters
// whenever the ladder is flat and ready; level k+1 enters when level k's open
// return has fallen to its trigger; each level exits independently when its
// own return reaches its target. The ladder state is an explicit
// finite-state machine advanced only by fills, so next-bar execution and
// rejections cannot desynchronise it.
type MagicSplit struct {
	levels              []SplitLevel
	allowSameDayReentry bool

	states  []splitLevelState
	ready   bool // false after a level-1 exit until the next trading day
	lastDay time.Time
}

// NewMagicSplit builds the strategy from run parameters. Without an explicit
// levels ladder it uses five rungs with a 5% target, armed at a 3% drawdown
// on the rung above.
func NewMagicSplit(params strategy.Params) (strategy.Strategy, error) {
	allowReentry, err := params.Bool("allow_same_day_reentry", false)
	if err != nil {
		return nil, err
	}
	amountPerLevel, err := params.Decimal("amount_per_level", decimal.Zero)
	if err != nil {
		return nil, err
	}
	rawLevels, err := params.ObjectSlice("levels")
	if err != nil {
		return nil, err
	}

	var levels []SplitLevel
	if len(rawLevels) == 0 {
		levels = defaultSplitLadder(5, amountPerLevel)
	} else {
		levels = make([]SplitLevel, 0, len(rawLevels))
		for i, raw := range rawLevels {
			target, err := raw.Decimal("target_rate", decimal.Zero)
			if err != nil {
				return nil, err
			}
			if target.LessThanOrEqual(decimal.Zero) {
				return nil, errs.NewConfigError("levels", "level %d target_rate must be positive", i+1)
			}
			invest, err := raw.Decimal("invest_amount", amountPerLevel)
			if err != nil {
				return nil, err
			}
			lvl := SplitLevel{TargetRate: target, InvestAmount: invest}
			if raw.Has("trigger_rate") {
				trigger, err := raw.Decimal("trigger_rate", decimal.Zero)
				if err != nil {
					return nil, err
				}
				if !trigger.IsNegative() {
					return nil, errs.NewConfigError("levels", "level %d trigger_rate must be negative", i+1)
				}
				lvl.TriggerRate = &trigger
			} else if i > 0 {
				return nil, errs.NewConfigError("levels", "level %d requires a trigger_rate", i+1)
			}
			levels = append(levels, lvl)
		}
	}

	return &MagicSplit{
		levels:              levels,
		states:              make([]splitLevelState, len(levels)),
		allowSameDayReentry: allowReentry,
		ready:               true,
	}, nil
}

func defaultSplitLadder(count int, amountPerLevel decimal.Decimal) []SplitLevel {
	target := decimal.NewFromFloat(0.05)
	trigger := decimal.NewFromFloat(-0.03)
	levels := make([]SplitLevel, count)
	for i := range levels {
		levels[i] = SplitLevel{TargetRate: target, InvestAmount: amountPerLevel}
		if i > 0 {
			levels[i].TriggerRate = &trigger
		}
	}
	return levels
}

// Name returns "magic_split".
func (s *MagicSplit) Name() string {
	return "magic_split"
}

// WarmupBars returns one; the ladder needs no indicator history.
func (s *MagicSplit) WarmupBars() int {
	return 1
}

// Evaluate advances the ladder for one bar: take-profit exits first, then at
// most one entry (level 1 when flat, otherwise the next armed rung).
func (s *MagicSplit) Evaluate(_ context.Context, ec strategy.EvalContext) ([]domain.TradeIntent, error) {
	day := ec.Bar.Timestamp
	if s.lastDay.IsZero() || !util.SameDay(s.lastDay, day) {
		s.ready = true
		s.lastDay = day
	}

	px := ec.Bar.Close
	var intents []domain.TradeIntent

	// Take-profit pass: every held rung exits independently at its target.
	for i := range s.levels {
		st := &s.states[i]
		if !st.bought || st.entryPrice.IsZero() {
			continue
		}
		ret := px.Sub(st.entryPrice).Div(st.entryPrice)
		if ret.GreaterThanOrEqual(s.levels[i].TargetRate) {
			intent := domain.QuantityIntent(ec.Bar.Symbol, domain.SideSell, st.quantity)
			intent.Tag.Level = i + 1
			intent.Tag.TargetRate = s.levels[i].TargetRate
			intent.Tag.Reason = "target"
			intents = append(intents, intent)
		}
	}

	if entry, ok := s.nextEntry(ec, day); ok {
		intents = append(intents, entry)
	}
	return intents, nil
}

// nextEntry returns the single entry intent the ladder allows on this bar,
// if any.
func (s *MagicSplit) nextEntry(ec strategy.EvalContext, day time.Time) (domain.TradeIntent, bool) {
	// Level 1 enters unconditionally once the ladder is ready.
	if !s.states[0].bought {
		if !s.ready || s.blockedSameDay(0, day) {
			return domain.TradeIntent{}, false
		}
		return s.entryIntent(ec, 0), true
	}

	px := ec.Bar.Close
	for i := 1; i < len(s.levels); i++ {
		if s.states[i].bought {
			continue
		}
		prev := s.states[i-1]
		if !prev.bought || prev.entryPrice.IsZero() {
			return domain.TradeIntent{}, false
		}
		trigger := s.levels[i].TriggerRate
		if trigger == nil {
			return domain.TradeIntent{}, false
		}
		ret := px.Sub(prev.entryPrice).Div(prev.entryPrice)
		if ret.LessThanOrEqual(*trigger) && !s.blockedSameDay(i, day) {
			return s.entryIntent(ec, i), true
		}
		return domain.TradeIntent{}, false
	}
	return domain.TradeIntent{}, false
}

// blockedSameDay reports whether rung idx already sold today and same-day
// re-entry is disabled.
func (s *MagicSplit) blockedSameDay(idx int, day time.Time) bool {
	if s.allowSameDayReentry {
		return false
	}
	st := s.states[idx]
	return !st.lastSold.IsZero() && util.SameDay(st.lastSold, day)
}

func (s *MagicSplit) entryIntent(ec strategy.EvalContext, idx int) domain.TradeIntent {
	notional := s.levels[idx].InvestAmount
	if notional.IsZero() {
		// Default sizing: an equal share of cash across the unbought rungs.
		remaining := 0
		for i := idx; i < len(s.levels); i++ {
			if !s.states[i].bought {
				remaining++
			}
		}
		notional = ec.Cash.Div(decimal.NewFromInt(int64(remaining)))
	}
	intent := domain.NotionalIntent(ec.Bar.Symbol, domain.SideBuy, notional)
	intent.Tag.Level = idx + 1
	intent.Tag.TargetRate = s.levels[idx].TargetRate
	intent.Tag.TriggerRate = s.levels[idx].TriggerRate
	intent.Tag.Reason = "split_entry"
	return intent
}

// OnFill advances the state machine. Buys arm the rung with the executed
// price and size; sells clear it, stamp the same-day guard, and a level-1
// sell parks the whole ladder until the next day.
func (s *MagicSplit) OnFill(fill domain.Fill) {
	if fill.Level < 1 || fill.Level > len(s.levels) {
		return
	}
	st := &s.states[fill.Level-1]
	if fill.Side == domain.SideBuy {
		st.bought = true
		st.entryPrice = fill.Price
		st.quantity = fill.Quantity
		return
	}
	st.bought = false
	st.quantity = decimal.Zero
	st.entryPrice = decimal.Zero
	st.lastSold = fill.Timestamp
	if fill.Level == 1 && !s.allowSameDayReentry {
		s.ready = false
		// Stamp the day so the daily reset does not re-arm the ladder on
		// the sell's own date.
		s.lastDay = fill.Timestamp
	}
}
