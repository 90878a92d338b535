package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"kairos/internal/errs"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the kairos backtester.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Backtest BacktestConfig `yaml:"backtest"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BacktestConfig holds execution cost defaults and batch parallelism.
type BacktestConfig struct {
	Commission float64 `yaml:"commission"`
	Slippage   float64 `yaml:"slippage"`
	MaxWorkers int     `yaml:"max_workers"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API,
// used when bars are fetched live instead of read from disk.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "kairos.db",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Backtest: BacktestConfig{
			Commission: 0.001,
			Slippage:   0.0005,
			MaxWorkers: 4,
		},
		Alpaca: Alpaca{
			Feed:            "iex",
			RateLimitPerMin: 200,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the rest of the system cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.NewConfigError("server.port", "out of range: %d", c.Server.Port)
	}
	if c.Backtest.Commission < 0 {
		return errs.NewConfigError("backtest.commission", "must not be negative: %v", c.Backtest.Commission)
	}
	if c.Backtest.Slippage < 0 {
		return errs.NewConfigError("backtest.slippage", "must not be negative: %v", c.Backtest.Slippage)
	}
	if c.Backtest.MaxWorkers < 1 {
		return errs.NewConfigError("backtest.max_workers", "must be at least 1: %d", c.Backtest.MaxWorkers)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KAIROS_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("KAIROS_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("KAIROS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KAIROS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KAIROS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
