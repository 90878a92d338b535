package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"kairos/internal/api"
	"kairos/internal/config"
	"kairos/internal/exchange"
	"kairos/internal/live"
	"kairos/internal/store"
	"kairos/internal/strategy/builtins"
	"kairos/internal/util"

	"github.com/shopspring/decimal"
)

func main() {
	useAlpaca := flag.Bool("alpaca", false, "fetch bars from the Alpaca API instead of local parquet files")
	flag.Parse()

	cfgPath := "config/kairos.yaml"
	if p := os.Getenv("KAIROS_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	var provider store.MarketDataProvider = store.NewParquetStore(cfg.Storage.DataDir)
	if *useAlpaca {
		provider = live.NewAlpacaProvider(live.AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.Feed,
			PerMinute: cfg.Alpaca.RateLimitPerMin,
		}, logger)
	}

	sink, err := store.NewSQLiteSink(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open results database: %v", err)
	}
	defer sink.Close()

	exchangeCfg := exchange.Config{
		Commission: decimal.NewFromFloat(cfg.Backtest.Commission),
		Slippage:   decimal.NewFromFloat(cfg.Backtest.Slippage),
	}
	manager := api.NewManager(builtins.DefaultRegistry(), provider, sink, exchangeCfg, logger)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := api.NewServer(manager, addr, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
