// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers. Monetary thresholds are carried as
// decimal strings and parsed exactly at wire-up; they are never floats.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`      // realistic, paper, dry-run
	LogLevel string `toml:"log_level"` // debug, info, warn, error

	// CredentialsFile points to an AES-GCM encrypted credential bundle; when
	// set it supersedes per-exchange plaintext credentials.
	CredentialsFile     string `toml:"credentials_file"`
	CredentialsPassword string `toml:"credentials_password"`

	Exchanges map[string]ExchangeConfig `toml:"exchanges"`
	Trading   TradingConfig             `toml:"trading"`
	Stream    StreamConfig              `toml:"stream"`
	Breakers  BreakerConfig             `toml:"breakers"`
	Executor  ExecutorConfig            `toml:"executor"`
	Database  DatabaseConfig            `toml:"database"`
	Redis     RedisConfig               `toml:"redis"`
	Notify    NotifyConfig              `toml:"notify"`
	Advisor   AdvisorConfig             `toml:"advisor"`
}

// ExchangeConfig holds one venue's credentials and overrides.
type ExchangeConfig struct {
	Enabled    bool   `toml:"enabled"`
	APIKey     string `toml:"api_key"`
	APISecret  string `toml:"api_secret"`
	Passphrase string `toml:"passphrase"`
	Token      string `toml:"token"`
	BaseURL    string `toml:"base_url"`  // empty = registry default
	MakerFee   string `toml:"maker_fee"` // decimal string, empty = registry default
	TakerFee   string `toml:"taker_fee"`
}

// TradingConfig holds detection and risk thresholds. Decimal-string fields
// are parsed with shopspring/decimal at wire-up.
type TradingConfig struct {
	Symbols                    []string `toml:"symbols"`
	ReferenceCurrency          string   `toml:"reference_currency"`
	Rates                      map[string]string `toml:"rates"` // quote -> reference rate
	MinSpreadPercent           string   `toml:"min_spread_percent"`
	MinProfitReference         string   `toml:"min_profit_reference"`
	MinOrderSize               string   `toml:"min_order_size"`
	MaxPositionSize            string   `toml:"max_position_size"`
	MaxPositionPerVenue        string   `toml:"max_position_per_venue"`
	MaxTotalPosition           string   `toml:"max_total_position"`
	DailyLossLimit             string   `toml:"daily_loss_limit"`
	PerTradeLossLimit          string   `toml:"per_trade_loss_limit"`
	MaxDrawdownPercent         string   `toml:"max_drawdown_percent"`
	SlippageTolerancePercent   string   `toml:"slippage_tolerance_percent"`
	BalanceSafetyMarginPercent string   `toml:"balance_safety_margin_percent"`
	MaxSnapshotAgeMs           int64    `toml:"max_snapshot_age_ms"`
	MaxRetries                 int      `toml:"max_retries"`
}

// StreamConfig holds price-stream parameters.
type StreamConfig struct {
	PollingIntervalMs    int64 `toml:"polling_interval_ms"`
	PerVenueConcurrency  int   `toml:"per_venue_concurrency"`
	MaxConsecutiveErrors int   `toml:"max_consecutive_errors"`
	Depth                int   `toml:"depth"`
}

// BreakerConfig holds circuit breaker parameters.
type BreakerConfig struct {
	VolatilityWindowMs        int64   `toml:"volatility_window_ms"`
	VolatilityMaxPercent      float64 `toml:"volatility_max_percent"`
	ConnectivityFailuresToTrip int    `toml:"connectivity_failures_to_trip"`
	ErrorRateWindow           int     `toml:"error_rate_window"`
	ErrorRateMinSamples       int     `toml:"error_rate_min_samples"`
	ErrorRateMax              float64 `toml:"error_rate_max"`
	CooldownMs                int64   `toml:"cooldown_ms"`
}

// ExecutorConfig holds execution timing parameters.
type ExecutorConfig struct {
	PollIntervalMs  int64 `toml:"poll_interval_ms"`
	TotalDeadlineMs int64 `toml:"total_deadline_ms"`
	NetTimeoutMs    int64 `toml:"net_timeout_ms"`
	RefetchOnExec   bool  `toml:"refetch_on_exec"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the journal.
type DatabaseConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

// RedisConfig holds the optional snapshot cache connection.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// NotifyConfig holds operator alerting parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AdvisorConfig holds the optional maker/taker advisor endpoint.
type AdvisorConfig struct {
	URL       string `toml:"url"`
	TimeoutMs int64  `toml:"timeout_ms"`
}

// Defaults returns a Config populated with conservative defaults; Load
// layers the TOML file and environment overrides on top.
func Defaults() Config {
	return Config{
		Mode:     "dry-run",
		LogLevel: "info",
		Trading: TradingConfig{
			Symbols:                    []string{"BTCUSDT", "ETHUSDT"},
			ReferenceCurrency:          "USDT",
			Rates:                      map[string]string{"USDT": "1"},
			MinSpreadPercent:           "0.3",
			MinProfitReference:         "1",
			MinOrderSize:               "0.0001",
			MaxPositionSize:            "1000",
			MaxPositionPerVenue:        "5000",
			MaxTotalPosition:           "10000",
			DailyLossLimit:             "100",
			PerTradeLossLimit:          "20",
			MaxDrawdownPercent:         "10",
			SlippageTolerancePercent:   "0.5",
			BalanceSafetyMarginPercent: "5",
			MaxSnapshotAgeMs:           3000,
			MaxRetries:                 3,
		},
		Stream: StreamConfig{
			PollingIntervalMs:    1000,
			PerVenueConcurrency:  2,
			MaxConsecutiveErrors: 5,
			Depth:                20,
		},
		Breakers: BreakerConfig{
			VolatilityWindowMs:         60_000,
			VolatilityMaxPercent:       5.0,
			ConnectivityFailuresToTrip: 5,
			ErrorRateWindow:            50,
			ErrorRateMinSamples:        10,
			ErrorRateMax:               0.5,
			CooldownMs:                 300_000,
		},
		Executor: ExecutorConfig{
			PollIntervalMs:  1000,
			TotalDeadlineMs: 120_000,
			NetTimeoutMs:    10_000,
			RefetchOnExec:   true,
		},
		Database: DatabaseConfig{
			SSLMode:  "disable",
			MaxConns: 4,
			MinConns: 1,
		},
		Advisor: AdvisorConfig{TimeoutMs: 500},
	}
}

// Validate checks mode, venue names, symbols and every decimal-string field.
func (c *Config) Validate() error {
	switch c.Mode {
	case "realistic", "paper", "dry-run":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	for name := range c.Exchanges {
		if _, err := domain.ParseVenue(name); err != nil {
			return fmt.Errorf("config: exchanges.%s: %w", name, err)
		}
	}

	for _, sym := range c.Trading.Symbols {
		if _, err := domain.ParseSymbol(sym); err != nil {
			return fmt.Errorf("config: trading.symbols: %w", err)
		}
	}

	decFields := map[string]string{
		"trading.min_spread_percent":            c.Trading.MinSpreadPercent,
		"trading.min_profit_reference":          c.Trading.MinProfitReference,
		"trading.min_order_size":                c.Trading.MinOrderSize,
		"trading.max_position_size":             c.Trading.MaxPositionSize,
		"trading.max_position_per_venue":        c.Trading.MaxPositionPerVenue,
		"trading.max_total_position":            c.Trading.MaxTotalPosition,
		"trading.daily_loss_limit":              c.Trading.DailyLossLimit,
		"trading.per_trade_loss_limit":          c.Trading.PerTradeLossLimit,
		"trading.max_drawdown_percent":          c.Trading.MaxDrawdownPercent,
		"trading.slippage_tolerance_percent":    c.Trading.SlippageTolerancePercent,
		"trading.balance_safety_margin_percent": c.Trading.BalanceSafetyMarginPercent,
	}
	for field, raw := range decFields {
		if raw == "" {
			continue
		}
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	for quote, rate := range c.Trading.Rates {
		if _, err := decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("config: trading.rates.%s: %w", quote, err)
		}
	}
	for name, ex := range c.Exchanges {
		for field, raw := range map[string]string{"maker_fee": ex.MakerFee, "taker_fee": ex.TakerFee} {
			if raw == "" {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("config: exchanges.%s.%s: %w", name, field, err)
			}
			if d.IsNegative() {
				return fmt.Errorf("config: exchanges.%s.%s must be non-negative", name, field)
			}
		}
	}

	if c.Stream.PollingIntervalMs <= 0 {
		return fmt.Errorf("config: stream.polling_interval_ms must be positive")
	}
	if c.Stream.PerVenueConcurrency <= 0 {
		return fmt.Errorf("config: stream.per_venue_concurrency must be positive")
	}
	if c.Trading.MaxSnapshotAgeMs <= 0 {
		return fmt.Errorf("config: trading.max_snapshot_age_ms must be positive")
	}
	if c.Executor.TotalDeadlineMs <= 0 || c.Executor.PollIntervalMs <= 0 || c.Executor.NetTimeoutMs <= 0 {
		return fmt.Errorf("config: executor timings must be positive")
	}
	if c.Breakers.ErrorRateMax < 0 || c.Breakers.ErrorRateMax > 1 {
		return fmt.Errorf("config: breakers.error_rate_max must be within [0,1]")
	}

	if c.CredentialsFile != "" && c.CredentialsPassword == "" {
		return fmt.Errorf("config: credentials_file set without credentials_password")
	}

	return nil
}

// EnabledVenues returns the venues with an enabled exchanges entry, in
// lexicographic order.
func (c *Config) EnabledVenues() []domain.Venue {
	var out []domain.Venue
	for _, v := range domain.AllVenues() {
		if ex, ok := c.Exchanges[string(v)]; ok && ex.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// Dec parses a decimal-string config field that Validate has already
// checked. Empty strings return zero.
func Dec(raw string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(raw)
}
