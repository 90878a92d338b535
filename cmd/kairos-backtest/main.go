package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kairos/internal/backtest"
	"kairos/internal/config"
	"kairos/internal/domain"
	"kairos/internal/exchange"
	"kairos/internal/rebalance"
	"kairos/internal/store"
	"kairos/internal/strategy"
	"kairos/internal/strategy/builtins"
	"kairos/internal/util"
)

func main() {
	var (
		strategyID = flag.String("strategy", "", "strategy ID (see -list)")
		symbolsArg = flag.String("symbols", "", "comma-separated symbols")
		capital    = flag.Float64("capital", 10000, "initial capital")
		startArg   = flag.String("start", "", "start date, YYYY-MM-DD")
		endArg     = flag.String("end", "", "end date, YYYY-MM-DD")
		paramsArg  = flag.String("params", "", "strategy params as JSON")
		save       = flag.Bool("save", false, "persist the report to the results database")
		list       = flag.Bool("list", false, "list registered strategies and exit")
	)
	flag.Parse()

	registry := builtins.DefaultRegistry()
	if *list {
		for _, id := range registry.List() {
			fmt.Println(id)
		}
		return
	}

	cfgPath := "config/kairos.yaml"
	if p := os.Getenv("KAIROS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *strategyID == "" || *startArg == "" || *endArg == "" {
		log.Fatal("-strategy, -start, and -end are required")
	}
	start, err := time.Parse("2006-01-02", *startArg)
	if err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endArg)
	if err != nil {
		log.Fatalf("bad -end: %v", err)
	}

	params := strategy.Params{}
	if *paramsArg != "" {
		if err := json.Unmarshal([]byte(*paramsArg), &params); err != nil {
			log.Fatalf("bad -params: %v", err)
		}
	}

	strat, err := registry.Create(*strategyID, params)
	if err != nil {
		log.Fatalf("creating strategy: %v", err)
	}

	symbols := splitSymbols(*symbolsArg)
	if allocator, ok := strat.(strategy.Allocator); ok && len(allocator.Symbols()) > 0 {
		symbols = allocator.Symbols()
	}
	if len(symbols) == 0 {
		log.Fatal("-symbols is required for this strategy")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider := store.NewParquetStore(cfg.Storage.DataDir)
	bars := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		series, err := provider.GetBars(ctx, sym, domain.Timeframe1Day, start, end)
		if err != nil {
			log.Fatalf("loading bars for %s: %v", sym, err)
		}
		bars[sym] = series
	}

	runner := backtest.NewRunner(logger)
	report, err := runner.Run(ctx, backtest.Spec{
		RunID:          uuid.NewString(),
		StrategyID:     *strategyID,
		Strategy:       strat,
		Symbols:        symbols,
		InitialCapital: decimal.NewFromFloat(*capital),
		Bars:           bars,
		Exchange: exchange.Config{
			Commission: decimal.NewFromFloat(cfg.Backtest.Commission),
			Slippage:   decimal.NewFromFloat(cfg.Backtest.Slippage),
		},
		Rebalance: rebalance.DefaultOptions(),
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if *save {
		sink, err := store.NewSQLiteSink(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening results database: %v", err)
		}
		defer sink.Close()
		if err := sink.SaveReport(ctx, report); err != nil {
			log.Fatalf("saving report: %v", err)
		}
	}

	out, err := json.MarshalIndent(report.Summary, "", "  ")
	if err != nil {
		log.Fatalf("encoding summary: %v", err)
	}
	fmt.Println(string(out))
}

func splitSymbols(arg string) []string {
	if arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
