package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Assets   AssetConfig    `toml:"assets"`
	Window   WindowConfig   `toml:"window"`
	Trading  TradingConfig  `toml:"trading"`
	Strategy StrategyConfig `toml:"strategy"`
	Feed     FeedConfig     `toml:"feed"`
}

type GeneralConfig struct {
	DBPath      string `toml:"db_path"`
	TradeLog    string `toml:"trade_log"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

type AssetConfig struct {
	Reference []string `toml:"reference"`
	Tradeable []string `toml:"tradeable"`
}

// All returns every asset the system tracks, references first.
func (a AssetConfig) All() []string {
	out := make([]string, 0, len(a.Reference)+len(a.Tradeable))
	out = append(out, a.Reference...)
	out = append(out, a.Tradeable...)
	return out
}

type WindowConfig struct {
	Duration          Duration `toml:"duration"`
	EntryMinRemaining Duration `toml:"entry_min_remaining"`
	EntryMaxRemaining Duration `toml:"entry_max_remaining"`
}

type TradingConfig struct {
	Stake              float64 `toml:"stake"`
	MaxTradesPerWindow int     `toml:"max_trades_per_window"`
	StopLossPct        float64 `toml:"stop_loss_pct"`
}

// Zone is an inclusive price sub-range in [0, 1].
type Zone struct {
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`
}

// Contains reports whether p lies in the zone, bounds included.
func (z Zone) Contains(p float64) bool {
	return z.Min <= p && p <= z.Max
}

type StrategyConfig struct {
	HighZone        Zone    `toml:"high_zone"`
	LowZone         Zone    `toml:"low_zone"`
	LaggardUpZone   Zone    `toml:"laggard_up_zone"`
	LaggardDownZone Zone    `toml:"laggard_down_zone"`
	ExitUp          float64 `toml:"exit_up"`
	ExitDown        float64 `toml:"exit_down"`
}

type FeedConfig struct {
	Provider      string   `toml:"provider"` // "poll", "stream" or "synthetic"
	RESTURL       string   `toml:"rest_url"`
	WSURL         string   `toml:"ws_url"`
	PollInterval  Duration `toml:"poll_interval"`
	RetryDelay    Duration `toml:"retry_delay"`
	MaxRetries    int      `toml:"max_retries"`
	SyntheticSeed int64    `toml:"synthetic_seed"`

	// Markets maps asset symbols to CLOB token ids. Required for the
	// poll and stream providers; ignored by synthetic and replay.
	Markets map[string]string `toml:"markets"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations that would produce silently wrong trades.
// It is the only gate: past here the core assumes every threshold is sane.
func (c *Config) Validate() error {
	w := c.Window
	if w.Duration.Duration <= 0 {
		return fmt.Errorf("window duration must be positive, got %v", w.Duration.Duration)
	}
	if time.Hour%w.Duration.Duration != 0 {
		return fmt.Errorf("window duration %v must divide one hour", w.Duration.Duration)
	}
	if w.EntryMinRemaining.Duration < 0 || w.EntryMaxRemaining.Duration < 0 {
		return fmt.Errorf("entry eligibility bounds must be non-negative")
	}
	if w.EntryMinRemaining.Duration > w.EntryMaxRemaining.Duration {
		return fmt.Errorf("entry_min_remaining %v exceeds entry_max_remaining %v",
			w.EntryMinRemaining.Duration, w.EntryMaxRemaining.Duration)
	}

	if len(c.Assets.Reference) < 2 {
		return fmt.Errorf("need at least 2 reference assets, got %d", len(c.Assets.Reference))
	}
	if len(c.Assets.Tradeable) != 2 {
		return fmt.Errorf("need exactly 2 tradeable assets, got %d", len(c.Assets.Tradeable))
	}

	for _, z := range []struct {
		name string
		zone Zone
	}{
		{"high_zone", c.Strategy.HighZone},
		{"low_zone", c.Strategy.LowZone},
		{"laggard_up_zone", c.Strategy.LaggardUpZone},
		{"laggard_down_zone", c.Strategy.LaggardDownZone},
	} {
		if z.zone.Min > z.zone.Max {
			return fmt.Errorf("%s is inverted: min %.2f > max %.2f", z.name, z.zone.Min, z.zone.Max)
		}
		if z.zone.Min < 0 || z.zone.Max > 1 {
			return fmt.Errorf("%s must lie within [0, 1]", z.name)
		}
	}

	if c.Strategy.ExitUp <= 0 || c.Strategy.ExitUp > 1 {
		return fmt.Errorf("exit_up must be in (0, 1], got %.2f", c.Strategy.ExitUp)
	}
	if c.Strategy.ExitDown < 0 || c.Strategy.ExitDown >= 1 {
		return fmt.Errorf("exit_down must be in [0, 1), got %.2f", c.Strategy.ExitDown)
	}

	if c.Trading.Stake <= 0 {
		return fmt.Errorf("stake must be positive, got %.2f", c.Trading.Stake)
	}
	if c.Trading.MaxTradesPerWindow < 1 {
		return fmt.Errorf("max_trades_per_window must be at least 1, got %d", c.Trading.MaxTradesPerWindow)
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0, 1), got %.2f", c.Trading.StopLossPct)
	}

	if c.Feed.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Feed.RetryDelay.Duration <= 0 || c.Feed.MaxRetries < 1 {
		return fmt.Errorf("retry budget requires a positive retry_delay and max_retries >= 1")
	}
	if c.Feed.Provider == "poll" || c.Feed.Provider == "stream" {
		for _, asset := range c.Assets.All() {
			if c.Feed.Markets[asset] == "" {
				return fmt.Errorf("feed provider %q requires a market token id for %s", c.Feed.Provider, asset)
			}
		}
	}

	return nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:      "./data/laggard.db",
			TradeLog:    "./logs/trades.csv",
			LogLevel:    "info",
			MetricsAddr: ":9188",
		},
		Assets: AssetConfig{
			Reference: []string{"BTC", "ETH"},
			Tradeable: []string{"SOL", "XRP"},
		},
		Window: WindowConfig{
			Duration:          Duration{15 * time.Minute},
			EntryMinRemaining: Duration{90 * time.Second},
			EntryMaxRemaining: Duration{300 * time.Second},
		},
		Trading: TradingConfig{
			Stake:              1.0,
			MaxTradesPerWindow: 1,
			StopLossPct:        0.05,
		},
		Strategy: StrategyConfig{
			HighZone:        Zone{Min: 0.75, Max: 1.00},
			LowZone:         Zone{Min: 0.00, Max: 0.25},
			LaggardUpZone:   Zone{Min: 0.00, Max: 0.50},
			LaggardDownZone: Zone{Min: 0.50, Max: 1.00},
			ExitUp:          0.90,
			ExitDown:        0.10,
		},
		Feed: FeedConfig{
			Provider:     "synthetic",
			RESTURL:      "https://clob.polymarket.com",
			WSURL:        "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			PollInterval: Duration{5 * time.Second},
			RetryDelay:   Duration{5 * time.Second},
			MaxRetries:   10,
		},
	}
}
