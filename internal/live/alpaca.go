package live

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"kairos/internal/domain"
	"kairos/internal/errs"
	"kairos/internal/store"
	"kairos/internal/util"
)

// Compile-time interface check.
var _ store.MarketDataProvider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches historical bars from the Alpaca market-data API.
// Calls are rate limited, retried with exponential backoff, and guarded by
// a circuit breaker so a dead upstream fails fast instead of hammering.
type AlpacaProvider struct {
	client      *marketdata.Client
	limiter     *util.RateLimiter
	breaker     *util.CircuitBreaker
	maxAttempts int
	baseDelay   time.Duration
	feed        string
	log         *slog.Logger
}

// AlpacaConfig configures an AlpacaProvider.
type AlpacaConfig struct {
	APIKey      string
	APISecret   string
	DataURL     string // empty = Alpaca default
	Feed        string // e.g. "sip" or "iex"
	PerMinute   int    // rate limit, API calls per minute
	MaxAttempts int    // retry attempts per call
	BaseDelay   time.Duration
}

// NewAlpacaProvider creates a provider with the given credentials and
// resilience settings. Zero-valued limits fall back to sane defaults.
func NewAlpacaProvider(cfg AlpacaConfig, log *slog.Logger) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	return &AlpacaProvider{
		client:      marketdata.NewClient(opts),
		limiter:     util.NewRateLimiter(cfg.PerMinute),
		breaker:     util.NewCircuitBreaker(5, 30*time.Second),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		feed:        cfg.Feed,
		log:         log.With("provider", "alpaca"),
	}
}

// GetBars fetches bars for symbol within [start, end]. Upstream failures
// surface as an ExternalError carrying the attempt count; when the breaker
// is open the call fails immediately with ErrCircuitOpen.
func (p *AlpacaProvider) GetBars(
	ctx context.Context,
	symbol string,
	tf domain.Timeframe,
	start, end time.Time,
) ([]domain.Bar, error) {
	timeframe, err := alpacaTimeframe(tf)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []marketdata.Bar
	attempts := 0
	err = p.breaker.Do(func() error {
		n, rerr := util.Retry(ctx, p.maxAttempts, p.baseDelay, func() error {
			var ferr error
			raw, ferr = p.client.GetBars(symbol, marketdata.GetBarsRequest{
				TimeFrame: timeframe,
				Start:     start,
				End:       end,
				Feed:      marketdata.Feed(p.feed),
			})
			if ferr != nil {
				p.log.Warn("bar fetch failed", "symbol", symbol, "err", ferr)
			}
			return ferr
		})
		attempts = n
		return rerr
	})
	if err != nil {
		if errors.Is(err, errs.ErrCircuitOpen) {
			return nil, err
		}
		return nil, errs.NewExternalError("alpaca.GetBars", attempts, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timeframe: tf,
			Timestamp: ab.Timestamp.UTC(),
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    decimal.NewFromInt(int64(ab.Volume)),
		})
	}
	if len(bars) == 0 {
		return nil, errs.NewDataError(symbol, "no bars between %s and %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return bars, nil
}

func alpacaTimeframe(tf domain.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case domain.Timeframe1Day:
		return marketdata.OneDay, nil
	case domain.Timeframe1Min:
		return marketdata.OneMin, nil
	default:
		return marketdata.TimeFrame{}, errs.NewConfigError("timeframe", "unsupported timeframe %q", tf)
	}
}
