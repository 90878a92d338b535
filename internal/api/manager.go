package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"kairos/internal/backtest"
	"kairos/internal/domain"
	"kairos/internal/exchange"
	"kairos/internal/rebalance"
	"kairos/internal/store"
	"kairos/internal/strategy"
)

// Manager owns the lifecycle of submitted backtest runs: validation,
// asynchronous execution, status tracking, and result persistence.
type Manager struct {
	registry *strategy.Registry
	provider store.MarketDataProvider
	sink     store.ResultsSink // nil disables persistence
	runner   *backtest.Runner
	exchange exchange.Config
	log      *slog.Logger

	mu   sync.RWMutex
	runs map[string]*RunStatus
	wg   sync.WaitGroup
}

// NewManager wires a Manager. The sink may be nil, in which case finished
// runs are only held in memory.
func NewManager(
	registry *strategy.Registry,
	provider store.MarketDataProvider,
	sink store.ResultsSink,
	exchangeCfg exchange.Config,
	log *slog.Logger,
) *Manager {
	return &Manager{
		registry: registry,
		provider: provider,
		sink:     sink,
		runner:   backtest.NewRunner(log),
		exchange: exchangeCfg,
		log:      log,
		runs:     make(map[string]*RunStatus),
	}
}

// Submit validates the request, instantiates the strategy, and queues the
// run. It returns the run ID without waiting for execution.
func (m *Manager) Submit(ctx context.Context, req RunRequest) (string, error) {
	if err := req.Validate(m.registry); err != nil {
		return "", err
	}
	strat, err := m.registry.Create(req.StrategyID, req.Params)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	status := &RunStatus{
		RunID:       runID,
		StrategyID:  req.StrategyID,
		State:       StateQueued,
		SubmittedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.runs[runID] = status
	m.mu.Unlock()

	// The run outlives the submitting request, so its context must not die
	// with the handler. Values survive for tracing; shutdown drains
	// in-flight runs through Wait instead of cancellation.
	m.wg.Add(1)
	go m.execute(context.WithoutCancel(ctx), runID, req, strat)
	return runID, nil
}

// Get returns the status of a run.
func (m *Manager) Get(runID string) (*RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.runs[runID]
	if !ok {
		return nil, false
	}
	cp := *status
	return &cp, true
}

// Strategies returns the registered strategy IDs.
func (m *Manager) Strategies() []string {
	return m.registry.List()
}

// Wait blocks until all in-flight runs have finished. Used on shutdown and
// in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) execute(ctx context.Context, runID string, req RunRequest, strat strategy.Strategy) {
	defer m.wg.Done()
	m.setState(runID, StateRunning, nil, "")

	symbols := runSymbols(req, strat)
	start, end := req.DateRange()

	bars := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		series, err := m.provider.GetBars(ctx, sym, domain.Timeframe1Day, start, end)
		if err != nil {
			m.log.Warn("bar load failed", "run_id", runID, "symbol", sym, "err", err)
			m.setState(runID, StateFailed, nil, err.Error())
			return
		}
		bars[sym] = series
	}

	report, err := m.runner.Run(ctx, backtest.Spec{
		RunID:          runID,
		StrategyID:     req.StrategyID,
		Strategy:       strat,
		Symbols:        symbols,
		InitialCapital: req.InitialCapital,
		Bars:           bars,
		Exchange:       m.exchange,
		Rebalance:      rebalance.DefaultOptions(),
	})
	if err != nil {
		m.setState(runID, StateFailed, nil, err.Error())
		return
	}
	m.setState(runID, StateDone, report, "")

	// Persistence is fire and forget: a sink failure is logged, never
	// surfaced to the caller.
	if m.sink != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.sink.SaveReport(context.Background(), report); err != nil {
				m.log.Error("persisting report failed", "run_id", runID, "err", err)
			}
		}()
	}
}

func (m *Manager) setState(runID string, state RunState, report *backtest.Report, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.runs[runID]
	if !ok {
		return
	}
	status.State = state
	status.Report = report
	status.Error = errMsg
	if state == StateDone || state == StateFailed {
		now := time.Now().UTC()
		status.FinishedAt = &now
	}
}

// runSymbols resolves the bar universe for a run. Allocators know their own
// universe, canary and defensive assets included, so theirs wins over the
// request's symbol list.
func runSymbols(req RunRequest, strat strategy.Strategy) []string {
	if allocator, ok := strat.(strategy.Allocator); ok {
		if symbols := allocator.Symbols(); len(symbols) > 0 {
			return symbols
		}
	}
	return req.RequestedSymbols()
}
