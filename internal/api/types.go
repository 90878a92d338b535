// Package api exposes backtest runs over HTTP: submit a run, poll its
// status, list the registered strategies. Runs execute asynchronously; the
// submit endpoint returns a run ID immediately.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"kairos/internal/backtest"
	"kairos/internal/errs"
	"kairos/internal/strategy"
)

const (
	maxStrategyIDLen = 100
	maxSymbolLen     = 20
	maxSymbols       = 50
	dateLayout       = "2006-01-02"
)

// RunRequest is the JSON body of POST /backtest. Exactly one of Symbol and
// Symbols must be set: single-asset strategies take Symbol, multi-asset
// allocators take Symbols.
type RunRequest struct {
	StrategyID     string          `json:"strategy_id"`
	Symbol         string          `json:"symbol,omitempty"`
	Symbols        []string        `json:"symbols,omitempty"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Params         strategy.Params `json:"params,omitempty"`
}

// Validate checks the request against the given registry. All failures are
// ConfigErrors naming the offending field.
func (r *RunRequest) Validate(registry *strategy.Registry) error {
	if len(r.StrategyID) == 0 || len(r.StrategyID) > maxStrategyIDLen {
		return errs.NewConfigError("strategy_id", "must be 1-%d characters", maxStrategyIDLen)
	}
	if !registry.Contains(r.StrategyID) {
		return errs.NewConfigError("strategy_id", "unknown strategy %q", r.StrategyID)
	}

	hasSymbol := r.Symbol != ""
	hasSymbols := len(r.Symbols) > 0
	if hasSymbol == hasSymbols {
		return errs.NewConfigError("symbol", "exactly one of symbol and symbols must be set")
	}
	if len(r.Symbols) > maxSymbols {
		return errs.NewConfigError("symbols", "at most %d symbols, got %d", maxSymbols, len(r.Symbols))
	}
	if hasSymbol && len(r.Symbol) > maxSymbolLen {
		return errs.NewConfigError("symbol", "must be 1-%d characters", maxSymbolLen)
	}
	for _, sym := range r.Symbols {
		if sym == "" || len(sym) > maxSymbolLen {
			return errs.NewConfigError("symbols", "symbols must be 1-%d characters", maxSymbolLen)
		}
	}

	if !r.InitialCapital.GreaterThan(decimal.Zero) {
		return errs.NewConfigError("initial_capital", "must be positive, got %s", r.InitialCapital)
	}

	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return errs.NewConfigError("start_date", "want YYYY-MM-DD, got %q", r.StartDate)
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return errs.NewConfigError("end_date", "want YYYY-MM-DD, got %q", r.EndDate)
	}
	if !start.Before(end) {
		return errs.NewConfigError("end_date", "must be after start_date")
	}
	return nil
}

// DateRange returns the parsed start and end dates in UTC. Call Validate
// first.
func (r *RunRequest) DateRange() (time.Time, time.Time) {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	return start.UTC(), end.UTC()
}

// RequestedSymbols returns the symbol list regardless of which field carried
// it.
func (r *RunRequest) RequestedSymbols() []string {
	if r.Symbol != "" {
		return []string{r.Symbol}
	}
	return r.Symbols
}

// RunState is the lifecycle of a submitted run.
type RunState string

const (
	StateQueued  RunState = "queued"
	StateRunning RunState = "running"
	StateDone    RunState = "done"
	StateFailed  RunState = "failed"
)

// RunStatus is what GET /backtest/{id} returns.
type RunStatus struct {
	RunID       string           `json:"run_id"`
	StrategyID  string           `json:"strategy_id"`
	State       RunState         `json:"state"`
	SubmittedAt time.Time        `json:"submitted_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Report      *backtest.Report `json:"report,omitempty"`
}
