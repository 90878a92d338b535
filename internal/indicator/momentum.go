package indicator

import (
	"sort"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
)

// DefaultLookbacks are the trading-day offsets used for multi-horizon
// momentum scoring: roughly one, three, six, and twelve months.
var DefaultLookbacks = []int{21, 63, 126, 252}

// Return computes the fractional return from lookback bars ago to the latest
// close.
func Return(closes []decimal.Decimal, lookback int) (decimal.Decimal, error) {
	if lookback <= 0 || len(closes) < lookback+1 {
		return decimal.Zero, errs.ErrInsufficientData
	}
	cur := closes[len(closes)-1]
	past := closes[len(closes)-1-lookback]
	if past.IsZero() {
		return decimal.Zero, errs.ErrInsufficientData
	}
	return cur.Div(past).Sub(one), nil
}

// Momentum averages the lookback returns for the given horizons. It fails if
// any horizon lacks history, so a score is either fully informed or absent.
func Momentum(closes []decimal.Decimal, lookbacks []int) (decimal.Decimal, error) {
	if len(lookbacks) == 0 {
		lookbacks = DefaultLookbacks
	}
	sum := decimal.Zero
	for _, lb := range lookbacks {
		r, err := Return(closes, lb)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(lookbacks)))), nil
}

// MomentumSum sums the lookback returns without averaging. Canary-gated
// allocation uses the summed multi-horizon score.
func MomentumSum(closes []decimal.Decimal, lookbacks []int) (decimal.Decimal, error) {
	if len(lookbacks) == 0 {
		lookbacks = DefaultLookbacks
	}
	sum := decimal.Zero
	for _, lb := range lookbacks {
		r, err := Return(closes, lb)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(r)
	}
	return sum, nil
}

// Score pairs a symbol with its momentum score.
type Score struct {
	Symbol string
	Score  decimal.Decimal
}

// Rank orders symbols by momentum score descending. Equal scores tie-break
// by lexical symbol order so rankings are deterministic.
func Rank(scores map[string]decimal.Decimal) []Score {
	ranked := make([]Score, 0, len(scores))
	for sym, sc := range scores {
		ranked = append(ranked, Score{Symbol: sym, Score: sc})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score.Equal(ranked[j].Score) {
			return ranked[i].Symbol < ranked[j].Symbol
		}
		return ranked[i].Score.GreaterThan(ranked[j].Score)
	})
	return ranked
}
