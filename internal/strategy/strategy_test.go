package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kairos/internal/domain"
	"kairos/internal/errs"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string    { return s.name }
func (s *stubStrategy) WarmupBars() int { return 0 }
func (s *stubStrategy) Evaluate(_ context.Context, _ EvalContext) ([]domain.TradeIntent, error) {
	return nil, nil
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(_ Params) (Strategy, error) {
		return &stubStrategy{name: "stub"}, nil
	})

	s, err := r.Create("stub", nil)
	require.NoError(t, err)
	require.Equal(t, "stub", s.Name())
}

func TestRegistryCreate_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("nonexistent", nil)

	var cfgErr *errs.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "strategy_id", cfgErr.Field)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	noop := func(_ Params) (Strategy, error) { return &stubStrategy{}, nil }
	r.Register("beta", noop)
	r.Register("alpha", noop)

	require.Equal(t, []string{"alpha", "beta"}, r.List())
	require.True(t, r.Contains("alpha"))
	require.False(t, r.Contains("gamma"))
}

func TestParamsInt(t *testing.T) {
	p := Params{"period": float64(20), "bad": 1.5, "typed": "x"}

	got, err := p.Int("period", 5)
	require.NoError(t, err)
	require.Equal(t, 20, got)

	got, err = p.Int("missing", 5)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	_, err = p.Int("bad", 0)
	var cfgErr *errs.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = p.Int("typed", 0)
	require.ErrorAs(t, err, &cfgErr)
}

func TestParamsDecimal(t *testing.T) {
	p := Params{"k_factor": 0.3, "amount": "1000000", "bad": true}

	got, err := p.Decimal("k_factor", decimal.Zero)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromFloat(0.3)))

	got, err = p.Decimal("amount", decimal.Zero)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(1_000_000)))

	got, err = p.Decimal("missing", decimal.NewFromInt(7))
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(7)))

	var cfgErr *errs.ConfigError
	_, err = p.Decimal("bad", decimal.Zero)
	require.ErrorAs(t, err, &cfgErr)
}

func TestParamsStringSlice(t *testing.T) {
	p := Params{"symbols": []any{"SPY", "QQQ"}, "bad": []any{1}}

	got, err := p.StringSlice("symbols", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"SPY", "QQQ"}, got)

	var cfgErr *errs.ConfigError
	_, err = p.StringSlice("bad", nil)
	require.ErrorAs(t, err, &cfgErr)
}

func TestParamsObjectSlice(t *testing.T) {
	p := Params{"levels": []any{
		map[string]any{"target_rate": 0.05},
		map[string]any{"target_rate": 0.07, "trigger_rate": -0.03},
	}}

	levels, err := p.ObjectSlice("levels")
	require.NoError(t, err)
	require.Len(t, levels, 2)

	rate, err := levels[1].Decimal("trigger_rate", decimal.Zero)
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromFloat(-0.03)))
}
