package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
	"kairos/internal/indicator"
	"kairos/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*HAA)(nil)
var _ strategy.Allocator = (*HAA)(nil)

// HAA is a canary-gated allocation strategy. A designated canary asset's
// multi-horizon momentum acts as the risk switch: non-positive (or
// uncomputable) canary momentum sends the whole allocation to the defensive
// asset. When risk is on, the top-N offensive assets by momentum are held at
// equal weight, with any negative-momentum slot's weight shifted to the
// defensive asset.
type HAA struct {
	allocatorBase
	offensive []string
	canary    string
	defensive string
	topN      int
	lookbacks []int
	cadence   monthlyCadence
}

// NewHAA builds the strategy from run parameters.
func NewHAA(params strategy.Params) (strategy.Strategy, error) {
	offensive, err := params.StringSlice("offensive_symbols",
		[]string{"SPY", "IWM", "VEA", "VWO", "VNQ", "PDBC", "IEF", "TLT"})
	if err != nil {
		return nil, err
	}
	canary, err := params.String("canary_symbol", "TIP")
	if err != nil {
		return nil, err
	}
	defensive, err := params.String("defensive_symbol", "BIL")
	if err != nil {
		return nil, err
	}
	topN, err := params.Int("top_n", 4)
	if err != nil {
		return nil, err
	}
	interval, err := params.Int("rebalance_interval_months", 1)
	if err != nil {
		return nil, err
	}

	if len(offensive) == 0 {
		return nil, errs.NewConfigError("offensive_symbols", "must not be empty")
	}
	if topN <= 0 || topN > len(offensive) {
		return nil, errs.NewConfigError("top_n", "must lie in [1, %d], got %d", len(offensive), topN)
	}
	if canary == "" || defensive == "" {
		return nil, errs.NewConfigError("canary_symbol", "canary and defensive symbols are required")
	}

	lookbacks := indicator.DefaultLookbacks
	return &HAA{
		allocatorBase: allocatorBase{name: "haa", warmup: lookbacks[len(lookbacks)-1] + 1},
		offensive:     offensive,
		canary:        canary,
		defensive:     defensive,
		topN:          topN,
		lookbacks:     lookbacks,
		cadence:       monthlyCadence{intervalMonths: interval},
	}, nil
}

// Symbols returns the full universe including canary and defensive assets.
func (s *HAA) Symbols() []string {
	out := make([]string, 0, len(s.offensive)+2)
	out = append(out, s.offensive...)
	out = append(out, s.canary, s.defensive)
	return out
}

// TargetWeights computes the canary-gated allocation on monthly boundaries.
func (s *HAA) TargetWeights(_ context.Context, mc strategy.MultiEvalContext) (map[string]decimal.Decimal, bool, error) {
	if !s.cadence.due(mc.Timestamp) {
		return nil, false, nil
	}

	// An unreadable canary is treated as risk-off, not as an error.
	canaryScore, err := indicator.MomentumSum(mc.Histories[s.canary].Closes, s.lookbacks)
	if err != nil || canaryScore.LessThanOrEqual(decimal.Zero) {
		return map[string]decimal.Decimal{s.defensive: decimal.NewFromInt(1)}, true, nil
	}

	scores := make(map[string]decimal.Decimal, len(s.offensive))
	for _, sym := range s.offensive {
		score, err := indicator.MomentumSum(mc.Histories[sym].Closes, s.lookbacks)
		if err != nil {
			// Partial universes are tolerated; the symbol just cannot rank.
			continue
		}
		scores[sym] = score
	}
	if len(scores) == 0 {
		return map[string]decimal.Decimal{s.defensive: decimal.NewFromInt(1)}, true, nil
	}

	ranked := indicator.Rank(scores)
	n := s.topN
	if n > len(ranked) {
		n = len(ranked)
	}

	slot := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
	targets := make(map[string]decimal.Decimal, n+1)
	defensiveWeight := decimal.Zero
	for _, entry := range ranked[:n] {
		if entry.Score.LessThanOrEqual(decimal.Zero) {
			defensiveWeight = defensiveWeight.Add(slot)
			continue
		}
		targets[entry.Symbol] = slot
	}
	if defensiveWeight.IsPositive() {
		targets[s.defensive] = targets[s.defensive].Add(defensiveWeight)
	}
	return targets, true, nil
}
