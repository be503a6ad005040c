package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuerySignatureDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key", Secret: "secret"}

	sig1 := auth.QuerySignature("amount=1&symbol=BTCUSDT&timestamp=1700000000000")
	sig2 := auth.QuerySignature("amount=1&symbol=BTCUSDT&timestamp=1700000000000")
	assert.Equal(t, sig1, sig2, "same bytes, same signature")
	assert.Len(t, sig1, 64, "hex-encoded SHA-256")

	// Any byte change changes the signature.
	sig3 := auth.QuerySignature("amount=2&symbol=BTCUSDT&timestamp=1700000000000")
	assert.NotEqual(t, sig1, sig3)
}

func TestPassphraseHeaders(t *testing.T) {
	auth := &HMACAuth{Key: "api-key", Secret: "api-secret", Passphrase: "hunter2"}

	headers := auth.PassphraseHeadersAt("POST", "/api/v1/orders", `{"side":"buy"}`, 1_700_000_000_000)
	require.Equal(t, "api-key", headers["KC-API-KEY"])
	require.Equal(t, "1700000000000", headers["KC-API-TIMESTAMP"])
	require.Equal(t, "2", headers["KC-API-KEY-VERSION"])
	assert.NotEmpty(t, headers["KC-API-SIGN"])
	assert.NotEmpty(t, headers["KC-API-PASSPHRASE"])
	// The passphrase is transmitted signed, never in the clear.
	assert.NotEqual(t, "hunter2", headers["KC-API-PASSPHRASE"])

	// Deterministic at a fixed timestamp.
	again := auth.PassphraseHeadersAt("POST", "/api/v1/orders", `{"side":"buy"}`, 1_700_000_000_000)
	assert.Equal(t, headers, again)

	// Body participates in the signature.
	other := auth.PassphraseHeadersAt("POST", "/api/v1/orders", `{"side":"sell"}`, 1_700_000_000_000)
	assert.NotEqual(t, headers["KC-API-SIGN"], other["KC-API-SIGN"])
}

func TestConfigured(t *testing.T) {
	assert.False(t, (&HMACAuth{}).Configured(false))
	assert.True(t, (&HMACAuth{Key: "k", Secret: "s"}).Configured(false))
	assert.False(t, (&HMACAuth{Key: "k", Secret: "s"}).Configured(true))
	assert.True(t, (&HMACAuth{Key: "k", Secret: "s", Passphrase: "p"}).Configured(true))
}

func TestRedactedString(t *testing.T) {
	auth := &HMACAuth{Key: "verysecretkey", Secret: "sh"}
	s := auth.String()
	assert.NotContains(t, s, "verysecretkey")
	assert.Contains(t, s, "very****")
}
