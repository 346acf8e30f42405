package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marlin/internal/strategy"
	"marlin/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the marlin backtester.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Backtest Backtest `yaml:"backtest"`
	Gather   Gather   `yaml:"gather"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Risk     Risk     `yaml:"risk"`
	Logging  Logging  `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Backtest defines the simulation window, scan cadence, and ticker universe.
type Backtest struct {
	StartDate     string   `yaml:"start_date"`
	EndDate       string   `yaml:"end_date"`
	ScanFrequency string   `yaml:"scan_frequency"`
	Tickers       []string `yaml:"tickers"`
	TickerFile    string   `yaml:"ticker_file"`
	OutputCSV     string   `yaml:"output_csv"`
}

// Gather holds parameters for the daily-bar download job.
type Gather struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Risk overrides the built-in run-wide risk settings. Zero values keep the
// defaults; the boolean switches are pointers so "explicitly off" and "unset"
// stay distinguishable.
type Risk struct {
	ReferenceCapital  float64  `yaml:"reference_capital"`
	RiskPerTradePct   float64  `yaml:"risk_per_trade_pct"`
	MaxTotalPositions int      `yaml:"max_total_positions"`
	RewardRatio       float64  `yaml:"reward_ratio"`
	PartialEnabled    *bool    `yaml:"partial_enabled"`
	Pyramid           *Pyramid `yaml:"pyramiding"`
}

// Pyramid overrides the add-to-winner settings.
type Pyramid struct {
	Enabled  *bool   `yaml:"enabled"`
	RTrigger float64 `yaml:"r_trigger"`
	Size     float64 `yaml:"size"`
	MaxAdds  int     `yaml:"max_adds"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when a field is absent from
// the YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tracker.db",
		},
		Backtest: Backtest{
			ScanFrequency: string(util.ScanWeeklyMonday),
		},
		Gather: Gather{
			StartDate:       "2015-01-01",
			BatchSize:       200,
			RateLimitPerMin: 200,
		},
		Risk: Risk{
			RewardRatio: 2.0,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML configuration file at the given path over the defaults,
// then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARLIN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MARLIN_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK, applied last).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// Range parses the backtest window.
func (b Backtest) Range() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing backtest start_date %q: %w", b.StartDate, err)
	}
	end, err = time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing backtest end_date %q: %w", b.EndDate, err)
	}
	return start, end, nil
}

// Frequency returns the scan cadence as a calendar frequency code.
func (b Backtest) Frequency() util.ScanFrequency {
	return util.ScanFrequency(b.ScanFrequency)
}

// LoadTickers merges the inline ticker list with the optional ticker file
// (one symbol per line, '#' comments allowed) into a sorted, deduplicated,
// upper-cased universe.
func (b Backtest) LoadTickers() ([]string, error) {
	set := make(map[string]struct{})
	for _, t := range b.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			set[t] = struct{}{}
		}
	}

	if b.TickerFile != "" {
		data, err := os.ReadFile(b.TickerFile)
		if err != nil {
			return nil, fmt.Errorf("reading ticker file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			set[strings.ToUpper(line)] = struct{}{}
		}
	}

	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Apply overlays the configured risk overrides on a set of global settings.
func (r Risk) Apply(g strategy.Globals) strategy.Globals {
	if r.ReferenceCapital > 0 {
		g.ReferenceCapital = r.ReferenceCapital
	}
	if r.RiskPerTradePct > 0 {
		g.RiskPerTradePct = r.RiskPerTradePct
	}
	if r.MaxTotalPositions > 0 {
		g.MaxTotalPositions = r.MaxTotalPositions
	}
	if r.PartialEnabled != nil {
		g.PartialEnabled = *r.PartialEnabled
	}
	if p := r.Pyramid; p != nil {
		if p.Enabled != nil {
			g.Pyramid.Enabled = *p.Enabled
		}
		if p.RTrigger > 0 {
			g.Pyramid.RTrigger = p.RTrigger
		}
		if p.Size > 0 {
			g.Pyramid.Size = p.Size
		}
		if p.MaxAdds > 0 {
			g.Pyramid.MaxAdds = p.MaxAdds
		}
	}
	return g
}
