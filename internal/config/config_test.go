package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dry-run", cfg.Mode)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "live" }},
		{"bad venue", func(c *Config) { c.Exchanges = map[string]ExchangeConfig{"binance": {}} }},
		{"bad symbol", func(c *Config) { c.Trading.Symbols = []string{"NOTASYMBOL"} }},
		{"bad decimal", func(c *Config) { c.Trading.MinSpreadPercent = "zero point three" }},
		{"negative fee", func(c *Config) {
			c.Exchanges = map[string]ExchangeConfig{"nobitex": {MakerFee: "-0.001"}}
		}},
		{"bad rate", func(c *Config) { c.Trading.Rates = map[string]string{"IRT": "??"} }},
		{"zero interval", func(c *Config) { c.Stream.PollingIntervalMs = 0 }},
		{"error rate out of range", func(c *Config) { c.Breakers.ErrorRateMax = 1.5 }},
		{"credentials without password", func(c *Config) { c.CredentialsFile = "/tmp/creds.json" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "paper"

[exchanges.nobitex]
enabled = true
token = "from-file"

[trading]
min_spread_percent = "0.4"
`), 0o600))

	t.Setenv("ARBOT_NOBITEX_TOKEN", "from-env")
	t.Setenv("ARBOT_TRADING_MAX_RETRIES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, "0.4", cfg.Trading.MinSpreadPercent)
	assert.Equal(t, 7, cfg.Trading.MaxRetries)
	// Environment wins over the file.
	assert.Equal(t, "from-env", cfg.Exchanges["nobitex"].Token)
	// File values merge over defaults.
	assert.True(t, cfg.Exchanges["nobitex"].Enabled)
	assert.Equal(t, int64(1000), cfg.Stream.PollingIntervalMs)
}

func TestEnabledVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Exchanges = map[string]ExchangeConfig{
		"nobitex": {Enabled: true},
		"wallex":  {Enabled: false},
		"kucoin":  {Enabled: true},
	}
	assert.Equal(t, []domain.Venue{domain.VenueKucoin, domain.VenueNobitex}, cfg.EnabledVenues())
}

func TestDec(t *testing.T) {
	assert.True(t, Dec("").IsZero())
	assert.Equal(t, "0.3", Dec("0.3").String())
}
