package builtins

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kairos/internal/strategy"
)

// trendHist builds n daily bars whose closes change by step per bar.
func trendHist(n int, start, step float64) strategy.History {
	h := strategy.History{}
	price := start
	for i := 0; i < n; i++ {
		d := decimal.NewFromFloat(price)
		h.Timestamps = append(h.Timestamps, day0.AddDate(0, 0, i))
		h.Opens = append(h.Opens, d)
		h.Highs = append(h.Highs, d)
		h.Lows = append(h.Lows, d)
		h.Closes = append(h.Closes, d)
		price += step
	}
	return h
}

func TestHAACanaryGateDefensive(t *testing.T) {
	s, err := NewHAA(strategy.Params{
		"offensive_symbols": []any{"SPY", "IWM"},
		"top_n":             float64(2),
	})
	require.NoError(t, err)
	haa := s.(*HAA)

	histories := map[string]strategy.History{
		"TIP": trendHist(260, 200, -0.1), // canary falling: risk off
		"SPY": trendHist(260, 100, 0.5),
		"IWM": trendHist(260, 100, 0.3),
	}
	mc := strategy.MultiEvalContext{Timestamp: day0, Histories: histories}

	targets, now, err := haa.TargetWeights(context.Background(), mc)
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 1)
	require.True(t, targets["BIL"].Equal(decimal.NewFromInt(1)))
}

func TestHAACanaryInsufficientDataIsDefensive(t *testing.T) {
	s, err := NewHAA(strategy.Params{
		"offensive_symbols": []any{"SPY", "IWM"},
		"top_n":             float64(2),
	})
	require.NoError(t, err)
	haa := s.(*HAA)

	histories := map[string]strategy.History{
		"TIP": trendHist(10, 100, 0.1), // too short to score
		"SPY": trendHist(260, 100, 0.5),
		"IWM": trendHist(260, 100, 0.3),
	}
	mc := strategy.MultiEvalContext{Timestamp: day0, Histories: histories}

	targets, now, err := haa.TargetWeights(context.Background(), mc)
	require.NoError(t, err)
	require.True(t, now)
	require.True(t, targets["BIL"].Equal(decimal.NewFromInt(1)))
}

func TestHAAOffensiveTopN(t *testing.T) {
	s, err := NewHAA(strategy.Params{
		"offensive_symbols": []any{"SPY", "IWM", "TLT"},
		"top_n":             float64(2),
	})
	require.NoError(t, err)
	haa := s.(*HAA)

	histories := map[string]strategy.History{
		"TIP": trendHist(260, 100, 0.1),
		"SPY": trendHist(260, 100, 0.6),
		"IWM": trendHist(260, 100, 0.4),
		"TLT": trendHist(260, 100, 0.1),
	}
	mc := strategy.MultiEvalContext{Timestamp: day0, Histories: histories}

	targets, now, err := haa.TargetWeights(context.Background(), mc)
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 2)
	half := decimal.NewFromFloat(0.5)
	require.True(t, targets["SPY"].Equal(half), "SPY weight %s", targets["SPY"])
	require.True(t, targets["IWM"].Equal(half), "IWM weight %s", targets["IWM"])
}

func TestHAAMonthlyCadence(t *testing.T) {
	s, err := NewHAA(strategy.Params{
		"offensive_symbols": []any{"SPY", "IWM"},
		"top_n":             float64(2),
	})
	require.NoError(t, err)
	haa := s.(*HAA)

	histories := map[string]strategy.History{
		"TIP": trendHist(260, 100, 0.1),
		"SPY": trendHist(260, 100, 0.5),
		"IWM": trendHist(260, 100, 0.3),
	}

	_, now, err := haa.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now, "first evaluation rebalances")

	_, now, err = haa.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0.AddDate(0, 0, 10), Histories: histories})
	require.NoError(t, err)
	require.False(t, now, "same month must not rebalance again")

	_, now, err = haa.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0.AddDate(0, 1, 0), Histories: histories})
	require.NoError(t, err)
	require.True(t, now, "next month rebalances")
}

func TestDualMomentumPicksWinner(t *testing.T) {
	s, err := NewDualMomentum(strategy.Params{"momentum_period": float64(2)})
	require.NoError(t, err)
	dm := s.(*DualMomentum)

	histories := map[string]strategy.History{
		"SPY": trendHist(3, 100, 5),
		"EFA": trendHist(3, 100, 1),
		"AGG": trendHist(3, 100, 0),
	}
	targets, now, err := dm.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 1)
	require.True(t, targets["SPY"].Equal(decimal.NewFromInt(1)))
}

func TestDualMomentumAbsoluteGate(t *testing.T) {
	s, err := NewDualMomentum(strategy.Params{"momentum_period": float64(2)})
	require.NoError(t, err)
	dm := s.(*DualMomentum)

	histories := map[string]strategy.History{
		"SPY": trendHist(3, 100, -1),
		"EFA": trendHist(3, 100, -3),
		"AGG": trendHist(3, 100, 0),
	}
	targets, now, err := dm.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 1)
	require.True(t, targets["AGG"].Equal(decimal.NewFromInt(1)), "negative winner must fall back to the safe asset")
}

func TestStockRotationTopNEqualWeight(t *testing.T) {
	s, err := NewStockRotation(strategy.Params{
		"symbols": []any{"AAA", "BBB", "CCC"},
		"top_n":   float64(2),
	})
	require.NoError(t, err)
	rot := s.(*StockRotation)

	histories := map[string]strategy.History{
		"AAA": trendHist(260, 100, 0.5),
		"BBB": trendHist(260, 100, 0.3),
		"CCC": trendHist(260, 100, 0.1),
	}
	targets, now, err := rot.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 2)
	half := decimal.NewFromFloat(0.5)
	require.True(t, targets["AAA"].Equal(half))
	require.True(t, targets["BBB"].Equal(half))
}

func TestStockRotationToleratesShortHistory(t *testing.T) {
	s, err := NewStockRotation(strategy.Params{
		"symbols": []any{"AAA", "BBB"},
		"top_n":   float64(2),
	})
	require.NoError(t, err)
	rot := s.(*StockRotation)

	histories := map[string]strategy.History{
		"AAA": trendHist(260, 100, 0.5),
		"BBB": trendHist(20, 100, 0.5), // not enough history to rank
	}
	targets, now, err := rot.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	require.Len(t, targets, 1)
	require.True(t, targets["AAA"].Equal(decimal.NewFromInt(1)))
}

func TestSimplePowerFixedSleeves(t *testing.T) {
	s, err := NewSimplePower(strategy.Params{"ma_period": float64(3)})
	require.NoError(t, err)
	sp := s.(*SimplePower)

	histories := map[string]strategy.History{
		"TQQQ": trendHist(10, 100, 1), // above its MA
		"SCHD": trendHist(10, 50, 0),
		"PFIX": trendHist(10, 60, 0),
		"TMF":  trendHist(10, 70, 0),
	}
	targets, now, err := sp.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	require.True(t, targets["TQQQ"].Equal(decimal.NewFromFloat(0.5)))
	require.True(t, targets["SCHD"].Equal(decimal.NewFromFloat(0.2)))
	require.True(t, targets["PFIX"].Equal(decimal.NewFromFloat(0.15)))
	require.True(t, targets["TMF"].Equal(decimal.NewFromFloat(0.15)))
}

func TestSimplePowerRegimeShift(t *testing.T) {
	s, err := NewSimplePower(strategy.Params{"ma_period": float64(3)})
	require.NoError(t, err)
	sp := s.(*SimplePower)

	histories := map[string]strategy.History{
		"TQQQ": trendHist(10, 100, -2), // below its MA
		"SCHD": trendHist(10, 50, 0),
		"PFIX": trendHist(10, 60, 0),
		"TMF":  trendHist(10, 70, 0),
	}
	targets, now, err := sp.TargetWeights(context.Background(), strategy.MultiEvalContext{Timestamp: day0, Histories: histories})
	require.NoError(t, err)
	require.True(t, now)
	_, hasAggressive := targets["TQQQ"]
	require.False(t, hasAggressive, "down regime must drop the aggressive sleeve")
	require.True(t, targets["SCHD"].Equal(decimal.NewFromFloat(0.7)), "SCHD weight %s", targets["SCHD"])
}

func TestSimplePowerRejectsBadWeights(t *testing.T) {
	_, err := NewSimplePower(strategy.Params{"aggressive_weight": 0.9})
	require.Error(t, err)
}
