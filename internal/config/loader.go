package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/faridmah/arbot/internal/crypto"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// resolves the encrypted credential bundle when configured. The returned
// Config has NOT been validated; call Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env if present so operators can keep secrets out of the TOML.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.CredentialsFile != "" {
		bundle, err := crypto.LoadBundle(cfg.CredentialsFile, cfg.CredentialsPassword)
		if err != nil {
			return nil, fmt.Errorf("config: credentials: %w", err)
		}
		mergeCredentials(&cfg, bundle)
	}

	return &cfg, nil
}

// mergeCredentials overlays decrypted credentials onto the per-exchange
// config. Bundle entries win over plaintext TOML values.
func mergeCredentials(cfg *Config, bundle map[string]crypto.Credentials) {
	if cfg.Exchanges == nil {
		cfg.Exchanges = make(map[string]ExchangeConfig)
	}
	for name, cred := range bundle {
		ex := cfg.Exchanges[strings.ToLower(name)]
		if cred.Key != "" {
			ex.APIKey = cred.Key
		}
		if cred.Secret != "" {
			ex.APISecret = cred.Secret
		}
		if cred.Passphrase != "" {
			ex.Passphrase = cred.Passphrase
		}
		if cred.Token != "" {
			ex.Token = cred.Token
		}
		cfg.Exchanges[strings.ToLower(name)] = ex
	}
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
	setStr(&cfg.CredentialsFile, "ARBOT_CREDENTIALS_FILE")
	setStr(&cfg.CredentialsPassword, "ARBOT_CREDENTIALS_PASSWORD")

	// ── Per-exchange credentials: ARBOT_<VENUE>_API_KEY etc. ──
	if cfg.Exchanges == nil {
		cfg.Exchanges = make(map[string]ExchangeConfig)
	}
	for _, name := range []string{"nobitex", "wallex", "tabdeal", "invex", "kucoin"} {
		prefix := "ARBOT_" + strings.ToUpper(name) + "_"
		ex := cfg.Exchanges[name]
		setStr(&ex.APIKey, prefix+"API_KEY")
		setStr(&ex.APISecret, prefix+"API_SECRET")
		setStr(&ex.Passphrase, prefix+"PASSPHRASE")
		setStr(&ex.Token, prefix+"TOKEN")
		setStr(&ex.BaseURL, prefix+"BASE_URL")
		setBool(&ex.Enabled, prefix+"ENABLED")
		cfg.Exchanges[name] = ex
	}

	// ── Trading ──
	setStrSlice(&cfg.Trading.Symbols, "ARBOT_TRADING_SYMBOLS")
	setStr(&cfg.Trading.ReferenceCurrency, "ARBOT_TRADING_REFERENCE_CURRENCY")
	setStr(&cfg.Trading.MinSpreadPercent, "ARBOT_TRADING_MIN_SPREAD_PERCENT")
	setStr(&cfg.Trading.MinProfitReference, "ARBOT_TRADING_MIN_PROFIT_REFERENCE")
	setStr(&cfg.Trading.MaxPositionSize, "ARBOT_TRADING_MAX_POSITION_SIZE")
	setStr(&cfg.Trading.MaxPositionPerVenue, "ARBOT_TRADING_MAX_POSITION_PER_VENUE")
	setStr(&cfg.Trading.MaxTotalPosition, "ARBOT_TRADING_MAX_TOTAL_POSITION")
	setStr(&cfg.Trading.DailyLossLimit, "ARBOT_TRADING_DAILY_LOSS_LIMIT")
	setStr(&cfg.Trading.PerTradeLossLimit, "ARBOT_TRADING_PER_TRADE_LOSS_LIMIT")
	setStr(&cfg.Trading.MaxDrawdownPercent, "ARBOT_TRADING_MAX_DRAWDOWN_PERCENT")
	setStr(&cfg.Trading.SlippageTolerancePercent, "ARBOT_TRADING_SLIPPAGE_TOLERANCE_PERCENT")
	setInt64(&cfg.Trading.MaxSnapshotAgeMs, "ARBOT_TRADING_MAX_SNAPSHOT_AGE_MS")
	setInt(&cfg.Trading.MaxRetries, "ARBOT_TRADING_MAX_RETRIES")

	// ── Stream ──
	setInt64(&cfg.Stream.PollingIntervalMs, "ARBOT_STREAM_POLLING_INTERVAL_MS")
	setInt(&cfg.Stream.PerVenueConcurrency, "ARBOT_STREAM_PER_VENUE_CONCURRENCY")
	setInt(&cfg.Stream.MaxConsecutiveErrors, "ARBOT_STREAM_MAX_CONSECUTIVE_ERRORS")
	setInt(&cfg.Stream.Depth, "ARBOT_STREAM_DEPTH")

	// ── Breakers ──
	setInt64(&cfg.Breakers.VolatilityWindowMs, "ARBOT_BREAKERS_VOLATILITY_WINDOW_MS")
	setFloat64(&cfg.Breakers.VolatilityMaxPercent, "ARBOT_BREAKERS_VOLATILITY_MAX_PERCENT")
	setInt(&cfg.Breakers.ConnectivityFailuresToTrip, "ARBOT_BREAKERS_CONNECTIVITY_FAILURES_TO_TRIP")
	setInt(&cfg.Breakers.ErrorRateWindow, "ARBOT_BREAKERS_ERROR_RATE_WINDOW")
	setInt(&cfg.Breakers.ErrorRateMinSamples, "ARBOT_BREAKERS_ERROR_RATE_MIN_SAMPLES")
	setFloat64(&cfg.Breakers.ErrorRateMax, "ARBOT_BREAKERS_ERROR_RATE_MAX")
	setInt64(&cfg.Breakers.CooldownMs, "ARBOT_BREAKERS_COOLDOWN_MS")

	// ── Executor ──
	setInt64(&cfg.Executor.PollIntervalMs, "ARBOT_EXECUTOR_POLL_INTERVAL_MS")
	setInt64(&cfg.Executor.TotalDeadlineMs, "ARBOT_EXECUTOR_TOTAL_DEADLINE_MS")
	setInt64(&cfg.Executor.NetTimeoutMs, "ARBOT_EXECUTOR_NET_TIMEOUT_MS")
	setBool(&cfg.Executor.RefetchOnExec, "ARBOT_EXECUTOR_REFETCH_ON_EXEC")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ARBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ARBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ARBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ARBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "ARBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "ARBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ARBOT_DATABASE_SSLMODE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStrSlice(&cfg.Notify.Events, "ARBOT_NOTIFY_EVENTS")

	// ── Advisor ──
	setStr(&cfg.Advisor.URL, "ARBOT_ADVISOR_URL")
	setInt64(&cfg.Advisor.TimeoutMs, "ARBOT_ADVISOR_TIMEOUT_MS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
