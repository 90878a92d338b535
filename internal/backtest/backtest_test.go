package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/exchange"
	"kairos/internal/rebalance"
	"kairos/internal/strategy"
	"kairos/internal/util"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// dailyBars builds one bar per day from parallel open/close slices, with
// high and low spanning both.
func dailyBars(symbol string, opens, closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(opens))
	for i := range opens {
		o := decimal.NewFromFloat(opens[i])
		c := decimal.NewFromFloat(closes[i])
		hi, lo := o, c
		if c.GreaterThan(o) {
			hi, lo = c, o
		}
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: day0.AddDate(0, 0, i),
			Open:      o,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

// scriptStrategy emits a fixed set of intents at given bar indices and
// records the fills it observes.
type scriptStrategy struct {
	script map[int][]domain.TradeIntent
	bar    int
	fills  []domain.Fill
}

func (s *scriptStrategy) Name() string    { return "script" }
func (s *scriptStrategy) WarmupBars() int { return 0 }

func (s *scriptStrategy) Evaluate(_ context.Context, _ strategy.EvalContext) ([]domain.TradeIntent, error) {
	intents := s.script[s.bar]
	s.bar++
	return intents, nil
}

func (s *scriptStrategy) OnFill(fill domain.Fill) {
	s.fills = append(s.fills, fill)
}

func newRunner() *Runner {
	return NewRunner(util.NewLogger("error", "text"))
}

func singleSpec(strat strategy.Strategy, bars []domain.Bar) Spec {
	return Spec{
		RunID:          "run-1",
		StrategyID:     strat.Name(),
		Strategy:       strat,
		Symbols:        []string{bars[0].Symbol},
		InitialCapital: decimal.NewFromInt(10000),
		Bars:           map[string][]domain.Bar{bars[0].Symbol: bars},
		Rebalance:      rebalance.DefaultOptions(),
	}
}

func TestRunExecutesAtNextBarOpen(t *testing.T) {
	strat := &scriptStrategy{script: map[int][]domain.TradeIntent{
		0: {domain.NotionalIntent("AAPL", domain.SideBuy, decimal.NewFromInt(1000))},
	}}
	bars := dailyBars("AAPL", []float64{10, 12, 12}, []float64{10, 12, 12})

	report, err := newRunner().Run(context.Background(), singleSpec(strat, bars))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(strat.fills) == 0 {
		t.Fatal("strategy observed no fills")
	}
	fill := strat.fills[0]
	if !fill.Price.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("fill price = %s, want 12 (next bar's open)", fill.Price)
	}
	if !fill.Timestamp.Equal(day0.AddDate(0, 0, 1)) {
		t.Fatalf("fill timestamp = %s, want day after the signal", fill.Timestamp)
	}
	if !fill.Quantity.Equal(decimal.NewFromInt(83)) {
		t.Fatalf("fill quantity = %s, want 83", fill.Quantity)
	}
	if len(report.EquityCurve) != len(bars) {
		t.Fatalf("equity curve has %d snapshots, want %d", len(report.EquityCurve), len(bars))
	}
}

func TestRunLiquidatesAtEndOfRange(t *testing.T) {
	strat := &scriptStrategy{script: map[int][]domain.TradeIntent{
		0: {domain.NotionalIntent("AAPL", domain.SideBuy, decimal.NewFromInt(1000))},
	}}
	bars := dailyBars("AAPL", []float64{10, 12, 14}, []float64{10, 12, 15})

	report, err := newRunner().Run(context.Background(), singleSpec(strat, bars))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	last := report.Fills[len(report.Fills)-1]
	if last.Side != domain.SideSell || last.Reason != "end_of_run" {
		t.Fatalf("last fill = %s/%s, want sell/end_of_run", last.Side, last.Reason)
	}
	if !last.Price.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("liquidation price = %s, want final close 15", last.Price)
	}
	// 10000 - 83*12 + 83*15 = 10249 with a zero-cost model.
	want := decimal.NewFromInt(10249)
	if !report.Summary.FinalEquity.Equal(want) {
		t.Fatalf("final equity = %s, want %s", report.Summary.FinalEquity, want)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() *Report {
		strat := &scriptStrategy{script: map[int][]domain.TradeIntent{
			0: {domain.NotionalIntent("AAPL", domain.SideBuy, decimal.NewFromInt(5000))},
			2: {domain.NotionalIntent("AAPL", domain.SideSell, decimal.NewFromInt(2000))},
		}}
		bars := dailyBars("AAPL", []float64{10, 11, 12, 13, 14}, []float64{10, 11, 12, 13, 14})
		spec := singleSpec(strat, bars)
		spec.Exchange = exchange.DefaultConfig()
		report, err := newRunner().Run(context.Background(), spec)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return report
	}

	a, b := run(), run()
	if len(a.Fills) != len(b.Fills) {
		t.Fatalf("fill counts differ: %d vs %d", len(a.Fills), len(b.Fills))
	}
	for i := range a.Fills {
		if !a.Fills[i].Price.Equal(b.Fills[i].Price) || !a.Fills[i].Quantity.Equal(b.Fills[i].Quantity) {
			t.Fatalf("fill %d differs: %s@%s vs %s@%s",
				i, a.Fills[i].Quantity, a.Fills[i].Price, b.Fills[i].Quantity, b.Fills[i].Price)
		}
	}
	for i := range a.EquityCurve {
		if !a.EquityCurve[i].TotalEquity.Equal(b.EquityCurve[i].TotalEquity) {
			t.Fatalf("equity curve diverges at %d: %s vs %s",
				i, a.EquityCurve[i].TotalEquity, b.EquityCurve[i].TotalEquity)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strat := &scriptStrategy{}
	bars := dailyBars("AAPL", []float64{10, 11}, []float64{10, 11})
	report, err := newRunner().Run(ctx, singleSpec(strat, bars))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if report != nil {
		t.Fatal("cancelled run returned a report")
	}
}

func TestRunValidation(t *testing.T) {
	strat := &scriptStrategy{}
	bars := dailyBars("AAPL", []float64{10, 11}, []float64{10, 11})

	spec := singleSpec(strat, bars)
	spec.InitialCapital = decimal.Zero
	var cfgErr *errs.ConfigError
	if _, err := newRunner().Run(context.Background(), spec); !errors.As(err, &cfgErr) {
		t.Fatalf("zero capital returned %v, want ConfigError", err)
	}

	shuffled := []domain.Bar{bars[1], bars[0]}
	spec = singleSpec(strat, bars)
	spec.Bars["AAPL"] = shuffled
	var dataErr *errs.DataError
	if _, err := newRunner().Run(context.Background(), spec); !errors.As(err, &dataErr) {
		t.Fatalf("out-of-order bars returned %v, want DataError", err)
	}

	spec = singleSpec(strat, bars)
	spec.Bars = map[string][]domain.Bar{}
	if _, err := newRunner().Run(context.Background(), spec); !errors.As(err, &dataErr) {
		t.Fatalf("missing bars returned %v, want DataError", err)
	}
}

// stubAllocator targets fixed weights once, on the first bar.
type stubAllocator struct {
	symbols []string
	weights map[string]decimal.Decimal
	calls   int
}

func (s *stubAllocator) Name() string      { return "stub_alloc" }
func (s *stubAllocator) WarmupBars() int   { return 0 }
func (s *stubAllocator) Symbols() []string { return s.symbols }

func (s *stubAllocator) Evaluate(_ context.Context, _ strategy.EvalContext) ([]domain.TradeIntent, error) {
	return nil, nil
}

func (s *stubAllocator) TargetWeights(_ context.Context, _ strategy.MultiEvalContext) (map[string]decimal.Decimal, bool, error) {
	s.calls++
	return s.weights, s.calls == 1, nil
}

func TestRunAllocatorRebalances(t *testing.T) {
	strat := &stubAllocator{
		symbols: []string{"AAA", "BBB"},
		weights: map[string]decimal.Decimal{
			"AAA": decimal.NewFromFloat(0.5),
			"BBB": decimal.NewFromFloat(0.5),
		},
	}
	spec := Spec{
		RunID:          "run-alloc",
		StrategyID:     strat.Name(),
		Strategy:       strat,
		Symbols:        []string{"AAA", "BBB"},
		InitialCapital: decimal.NewFromInt(10000),
		Bars: map[string][]domain.Bar{
			"AAA": dailyBars("AAA", []float64{10, 10, 10}, []float64{10, 10, 10}),
			"BBB": dailyBars("BBB", []float64{20, 20, 20}, []float64{20, 20, 20}),
		},
		Rebalance: rebalance.DefaultOptions(),
	}

	report, err := newRunner().Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Weights raised on day 0 fill at day 1's opens: 500 AAA and 250 BBB,
	// then everything is liquidated at the final closes.
	if len(report.Fills) != 4 {
		t.Fatalf("got %d fills, want 2 rebalance buys + 2 liquidations", len(report.Fills))
	}
	if !report.Fills[0].Quantity.Equal(decimal.NewFromInt(500)) || report.Fills[0].Symbol != "AAA" {
		t.Fatalf("first fill = %s %s, want 500 AAA", report.Fills[0].Quantity, report.Fills[0].Symbol)
	}
	if !report.Fills[1].Quantity.Equal(decimal.NewFromInt(250)) || report.Fills[1].Symbol != "BBB" {
		t.Fatalf("second fill = %s %s, want 250 BBB", report.Fills[1].Quantity, report.Fills[1].Symbol)
	}
	if !report.Summary.FinalEquity.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("final equity = %s, want 10000 at flat prices", report.Summary.FinalEquity)
	}
}

func TestRunBatchPreservesOrder(t *testing.T) {
	specs := make([]Spec, 4)
	for i := range specs {
		strat := &scriptStrategy{script: map[int][]domain.TradeIntent{
			0: {domain.NotionalIntent("AAPL", domain.SideBuy, decimal.NewFromInt(int64(1000*(i+1))))},
		}}
		specs[i] = singleSpec(strat, dailyBars("AAPL", []float64{10, 10, 10}, []float64{10, 10, 10}))
		specs[i].RunID = specs[i].RunID + string(rune('a'+i))
	}
	specs[2].InitialCapital = decimal.Zero // this one must fail

	results := newRunner().RunBatch(context.Background(), specs, 3)
	if len(results) != len(specs) {
		t.Fatalf("got %d results, want %d", len(results), len(specs))
	}
	for i, res := range results {
		if res.Index != i {
			t.Fatalf("result %d carries index %d", i, res.Index)
		}
	}
	var cfgErr *errs.ConfigError
	if !errors.As(results[2].Err, &cfgErr) {
		t.Fatalf("results[2].Err = %v, want ConfigError", results[2].Err)
	}
	for _, i := range []int{0, 1, 3} {
		if results[i].Err != nil || results[i].Report == nil {
			t.Fatalf("result %d failed: %v", i, results[i].Err)
		}
	}
}

func TestSummarize(t *testing.T) {
	d := decimal.NewFromInt
	fills := []domain.Fill{
		{Side: domain.SideBuy},
		{Side: domain.SideSell, RealizedPnL: d(30)},
		{Side: domain.SideSell, RealizedPnL: d(-10)},
	}
	curve := []domain.EquitySnapshot{
		{TotalEquity: d(100)},
		{TotalEquity: d(120)},
		{TotalEquity: d(90)},
		{TotalEquity: d(110)},
	}

	s := summarize(d(100), d(110), fills, curve)
	if !s.TotalReturnPct.Equal(d(10)) {
		t.Fatalf("TotalReturnPct = %s, want 10", s.TotalReturnPct)
	}
	if s.TradeCount != 3 {
		t.Fatalf("TradeCount = %d, want 3", s.TradeCount)
	}
	if !s.WinRate.Equal(d(50)) {
		t.Fatalf("WinRate = %s, want 50", s.WinRate)
	}
	if !s.ProfitFactor.Equal(d(3)) {
		t.Fatalf("ProfitFactor = %s, want 3", s.ProfitFactor)
	}
	if !s.MaxDrawdownPct.Equal(d(25)) {
		t.Fatalf("MaxDrawdownPct = %s, want 25", s.MaxDrawdownPct)
	}
	if s.SharpeRatio == 0 {
		t.Fatal("SharpeRatio = 0 for a moving curve")
	}
}

type countingStrategy struct {
	warmup int
	calls  int
}

func (s *countingStrategy) Name() string    { return "counting" }
func (s *countingStrategy) WarmupBars() int { return s.warmup }

func (s *countingStrategy) Evaluate(_ context.Context, _ strategy.EvalContext) ([]domain.TradeIntent, error) {
	s.calls++
	return nil, nil
}

func TestRunHoldsEvaluationUntilWarmup(t *testing.T) {
	strat := &countingStrategy{warmup: 3}
	bars := dailyBars("AAPL", []float64{10, 10, 10, 10}, []float64{10, 10, 10, 10})

	if _, err := newRunner().Run(context.Background(), singleSpec(strat, bars)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strat.calls != 2 {
		t.Fatalf("Evaluate called %d times, want 2 (only once 3 bars of history exist)", strat.calls)
	}
}

func TestCashLedgerTracksFills(t *testing.T) {
	l := &cashLedger{cash: decimal.NewFromInt(1000)}

	l.apply(domain.Fill{
		Side:       domain.SideBuy,
		Price:      decimal.NewFromInt(10),
		Quantity:   decimal.NewFromInt(5),
		Commission: decimal.NewFromInt(1),
	})
	if !l.cash.Equal(decimal.NewFromInt(949)) {
		t.Fatalf("cash after buy = %s, want 949", l.cash)
	}

	l.apply(domain.Fill{
		Side:       domain.SideSell,
		Price:      decimal.NewFromInt(12),
		Quantity:   decimal.NewFromInt(5),
		Commission: decimal.NewFromInt(2),
	})
	if !l.cash.Equal(decimal.NewFromInt(1007)) {
		t.Fatalf("cash after sell = %s, want 1007", l.cash)
	}
}
