package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/exchange"
	"kairos/internal/store"
	"kairos/internal/strategy/builtins"
	"kairos/internal/util"
)

func seededProvider(t *testing.T) *store.MemoryProvider {
	t.Helper()
	mp := store.NewMemoryProvider()
	bars := make([]domain.Bar, 0, 40)
	px := decimal.NewFromInt(100)
	for i := 0; i < 40; i++ {
		px = px.Add(decimal.NewFromInt(1))
		bars = append(bars, domain.Bar{
			Symbol:    "AAPL",
			Timeframe: domain.Timeframe1Day,
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      px,
			High:      px,
			Low:       px,
			Close:     px,
			Volume:    decimal.NewFromInt(1000),
		})
	}
	if err := mp.WriteBars(context.Background(), bars); err != nil {
		t.Fatalf("seeding bars: %v", err)
	}
	return mp
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(builtins.DefaultRegistry(), seededProvider(t), nil,
		exchange.Config{}, util.NewLogger("error", "text"))
}

func validRequest() RunRequest {
	return RunRequest{
		StrategyID:     "sma_crossover",
		Symbol:         "AAPL",
		InitialCapital: decimal.NewFromInt(10000),
		StartDate:      "2024-01-01",
		EndDate:        "2024-02-09",
	}
}

func TestRunRequestValidate(t *testing.T) {
	registry := builtins.DefaultRegistry()

	cases := []struct {
		name   string
		mutate func(*RunRequest)
		field  string
	}{
		{"unknown strategy", func(r *RunRequest) { r.StrategyID = "nope" }, "strategy_id"},
		{"empty strategy", func(r *RunRequest) { r.StrategyID = "" }, "strategy_id"},
		{"long strategy", func(r *RunRequest) { r.StrategyID = strings.Repeat("x", 101) }, "strategy_id"},
		{"no symbol", func(r *RunRequest) { r.Symbol = "" }, "symbol"},
		{"both symbol fields", func(r *RunRequest) { r.Symbols = []string{"MSFT"} }, "symbol"},
		{"empty symbol entry", func(r *RunRequest) { r.Symbol = ""; r.Symbols = []string{"MSFT", ""} }, "symbols"},
		{"long symbol", func(r *RunRequest) { r.Symbol = strings.Repeat("A", 21) }, "symbol"},
		{"too many symbols", func(r *RunRequest) {
			r.Symbol = ""
			r.Symbols = make([]string, 51)
			for i := range r.Symbols {
				r.Symbols[i] = "S"
			}
		}, "symbols"},
		{"zero capital", func(r *RunRequest) { r.InitialCapital = decimal.Zero }, "initial_capital"},
		{"bad start date", func(r *RunRequest) { r.StartDate = "01/02/2024" }, "start_date"},
		{"bad end date", func(r *RunRequest) { r.EndDate = "soon" }, "end_date"},
		{"inverted range", func(r *RunRequest) { r.StartDate, r.EndDate = r.EndDate, r.StartDate }, "end_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			var cfgErr *errs.ConfigError
			err := req.Validate(registry)
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate returned %v, want ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("error field = %q, want %q", cfgErr.Field, tc.field)
			}
		})
	}

	req := validRequest()
	if err := req.Validate(registry); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestManagerSubmitAndGet(t *testing.T) {
	m := newManager(t)

	runID, err := m.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	m.Wait()

	status, ok := m.Get(runID)
	if !ok {
		t.Fatalf("Get(%q) found nothing", runID)
	}
	if status.State != StateDone {
		t.Fatalf("state = %s (%s), want done", status.State, status.Error)
	}
	if status.Report == nil || status.Report.RunID != runID {
		t.Fatal("finished run carries no report")
	}
	if status.FinishedAt == nil {
		t.Fatal("finished run has no finish time")
	}
}

func TestManagerUnknownSymbolFails(t *testing.T) {
	m := newManager(t)

	req := validRequest()
	req.Symbol = "ZZZZ"
	runID, err := m.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	m.Wait()

	status, _ := m.Get(runID)
	if status.State != StateFailed {
		t.Fatalf("state = %s, want failed for unknown symbol", status.State)
	}
	if status.Error == "" {
		t.Fatal("failed run carries no error message")
	}
}

func TestServerEndpoints(t *testing.T) {
	m := newManager(t)
	srv := NewServer(m, "127.0.0.1:0", util.NewLogger("error", "text"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Submit a run.
	body := `{
		"strategy_id": "sma_crossover",
		"symbol": "AAPL",
		"initial_capital": 10000,
		"start_date": "2024-01-01",
		"end_date": "2024-02-09"
	}`
	resp, err := http.Post(ts.URL+"/backtest", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /backtest failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /backtest status = %d, want 202", resp.StatusCode)
	}
	var submitResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		t.Fatalf("decoding submit response: %v", err)
	}
	resp.Body.Close()
	runID := submitResp["run_id"]
	if runID == "" {
		t.Fatal("submit response carries no run_id")
	}
	m.Wait()

	// Poll it.
	resp, err = http.Get(ts.URL + "/backtest/" + runID)
	if err != nil {
		t.Fatalf("GET /backtest/{id} failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /backtest/{id} status = %d, want 200", resp.StatusCode)
	}
	var status RunStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	resp.Body.Close()
	if status.State != StateDone {
		t.Fatalf("state = %s (%s), want done", status.State, status.Error)
	}

	// Unknown run is a 404.
	resp, err = http.Get(ts.URL + "/backtest/does-not-exist")
	if err != nil {
		t.Fatalf("GET unknown run failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown run status = %d, want 404", resp.StatusCode)
	}

	// Invalid request is a 422.
	resp, err = http.Post(ts.URL+"/backtest", "application/json",
		strings.NewReader(`{"strategy_id":"nope","symbol":"AAPL","initial_capital":1,"start_date":"2024-01-01","end_date":"2024-02-01"}`))
	if err != nil {
		t.Fatalf("POST invalid request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid request status = %d, want 422", resp.StatusCode)
	}

	// Strategy listing.
	resp, err = http.Get(ts.URL + "/strategies")
	if err != nil {
		t.Fatalf("GET /strategies failed: %v", err)
	}
	var listing map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding strategies: %v", err)
	}
	resp.Body.Close()
	if len(listing["strategies"]) == 0 {
		t.Fatal("strategy listing is empty")
	}
}

// slowProvider stalls each bar fetch so a run is still loading data long
// after the submitting request has returned.
type slowProvider struct {
	inner store.MarketDataProvider
	delay time.Duration
}

func (p *slowProvider) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.delay):
	}
	return p.inner.GetBars(ctx, symbol, tf, start, end)
}

func TestServerRunOutlivesRequest(t *testing.T) {
	provider := &slowProvider{inner: seededProvider(t), delay: 200 * time.Millisecond}
	m := NewManager(builtins.DefaultRegistry(), provider, nil,
		exchange.Config{}, util.NewLogger("error", "text"))
	srv := NewServer(m, "127.0.0.1:0", util.NewLogger("error", "text"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{
		"strategy_id": "sma_crossover",
		"symbol": "AAPL",
		"initial_capital": 10000,
		"start_date": "2024-01-01",
		"end_date": "2024-02-09"
	}`
	resp, err := http.Post(ts.URL+"/backtest", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /backtest failed: %v", err)
	}
	var submitResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		t.Fatalf("decoding submit response: %v", err)
	}
	resp.Body.Close()

	m.Wait()

	status, ok := m.Get(submitResp["run_id"])
	if !ok {
		t.Fatalf("Get(%q) found nothing", submitResp["run_id"])
	}
	if status.State != StateDone {
		t.Fatalf("state = %s (%s), want done after the request returned", status.State, status.Error)
	}
}
