package indicator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kairos/internal/errs"
)

func decs(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestSMA(t *testing.T) {
	got, err := SMA(decs(1, 2, 3, 4, 5), 5)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(3)), "got %s", got)

	// Only the trailing window counts.
	got, err = SMA(decs(10, 20, 30, 40), 2)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(35)), "got %s", got)
}

func TestSMAInsufficientData(t *testing.T) {
	_, err := SMA(decs(1, 2), 3)
	require.ErrorIs(t, err, errs.ErrInsufficientData)

	_, err = SMA(nil, 1)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestEMA(t *testing.T) {
	// Seeded with SMA(1,2)=1.5, multiplier 2/3:
	// 1.5 -> 1.5+(3-1.5)*2/3 = 2.5 -> 2.5+(4-2.5)*2/3 = 3.5
	got, err := EMA(decs(1, 2, 3, 4), 2)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromFloat(3.5)), "got %s", got)

	// With exactly period values, EMA degenerates to the SMA seed.
	got, err = EMA(decs(2, 4, 6), 3)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(4)), "got %s", got)
}

func TestRSI(t *testing.T) {
	// Monotonic rise has no losses.
	got, err := RSI(decs(10, 11, 12, 13, 14, 15), 5)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(100)), "got %s", got)

	// Symmetric up/down move balances to 50.
	got, err = RSI(decs(10, 11, 10), 2)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(50)), "got %s", got)
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI(decs(10, 11), 2)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestStdDev(t *testing.T) {
	got, err := StdDev(decs(2, 4, 4, 4, 5, 5, 7, 9), 8)
	require.NoError(t, err)
	require.True(t, got.Sub(decimal.NewFromInt(2)).Abs().LessThan(decimal.New(1, -6)), "got %s", got)
}

func TestBollingerFlatSeries(t *testing.T) {
	closes := decs(100, 100, 100, 100, 100)
	b, err := Bollinger(closes, 5, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.True(t, b.Upper.Equal(decimal.NewFromInt(100)))
	require.True(t, b.Middle.Equal(decimal.NewFromInt(100)))
	require.True(t, b.Lower.Equal(decimal.NewFromInt(100)))
	require.True(t, b.Bandwidth.IsZero())
}

func TestBollingerBandsSpread(t *testing.T) {
	closes := decs(98, 102, 98, 102, 98, 102, 98, 102, 98, 102)
	b, err := Bollinger(closes, 10, decimal.NewFromFloat(1.5))
	require.NoError(t, err)
	require.True(t, b.Middle.Equal(decimal.NewFromInt(100)), "middle %s", b.Middle)
	require.True(t, b.Upper.GreaterThan(b.Middle))
	require.True(t, b.Lower.LessThan(b.Middle))
	require.True(t, b.Bandwidth.GreaterThan(decimal.Zero))
}

func TestTrueRange(t *testing.T) {
	tests := []struct {
		high, low, prevClose, want float64
	}{
		{12, 10, 11, 2},  // plain high-low
		{12, 10, 8, 4},   // gap up: high-prevClose dominates
		{12, 10, 15, 5},  // gap down: prevClose-low dominates
	}
	for _, tc := range tests {
		got := TrueRange(decimal.NewFromFloat(tc.high), decimal.NewFromFloat(tc.low), decimal.NewFromFloat(tc.prevClose))
		require.True(t, got.Equal(decimal.NewFromFloat(tc.want)), "TR(%v,%v,%v) = %s", tc.high, tc.low, tc.prevClose, got)
	}
}

func TestATR(t *testing.T) {
	highs := decs(11, 12, 12, 12)
	lows := decs(9, 10, 10, 10)
	closes := decs(10, 11, 11, 11)
	got, err := ATR(highs, lows, closes, 3)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)
}

func TestATRInsufficientData(t *testing.T) {
	_, err := ATR(decs(11, 12), decs(9, 10), decs(10, 11), 2)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestMACDFlatSeries(t *testing.T) {
	closes := make([]decimal.Decimal, 40)
	for i := range closes {
		closes[i] = decimal.NewFromInt(50)
	}
	got, err := MACD(closes, 12, 26, 9)
	require.NoError(t, err)
	require.True(t, got.MACD.IsZero())
	require.True(t, got.Signal.IsZero())
	require.True(t, got.Histogram.IsZero())
}

func TestMACDInsufficientData(t *testing.T) {
	_, err := MACD(decs(1, 2, 3), 12, 26, 9)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestReturn(t *testing.T) {
	got, err := Return(decs(100, 105, 110), 2)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromFloat(0.1)), "got %s", got)

	_, err = Return(decs(100, 110), 2)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestMomentum(t *testing.T) {
	// 10% over 2 bars, 4.7619..% over 1 bar; average of the two horizons.
	closes := decs(100, 105, 110)
	got, err := Momentum(closes, []int{1, 2})
	require.NoError(t, err)
	want := decimal.NewFromFloat(110.0/105.0 - 1).Add(decimal.NewFromFloat(0.1)).Div(decimal.NewFromInt(2))
	require.True(t, got.Sub(want).Abs().LessThan(decimal.New(1, -9)), "got %s want %s", got, want)
}

func TestMomentumInsufficientHorizon(t *testing.T) {
	_, err := Momentum(decs(100, 105, 110), []int{1, 5})
	require.ErrorIs(t, err, errs.ErrInsufficientData)
	require.True(t, errors.Is(err, errs.ErrInsufficientData))
}

func TestRankDeterministicTieBreak(t *testing.T) {
	scores := map[string]decimal.Decimal{
		"MSFT": decimal.NewFromFloat(0.2),
		"AAPL": decimal.NewFromFloat(0.2),
		"NVDA": decimal.NewFromFloat(0.5),
		"TLT":  decimal.NewFromFloat(-0.1),
	}
	ranked := Rank(scores)
	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.Symbol
	}
	require.Equal(t, []string{"NVDA", "AAPL", "MSFT", "TLT"}, got)
}
