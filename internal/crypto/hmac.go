// Package crypto provides the request-signing strategies used by the venue
// adapters (HMAC-SHA256 header and query signing, passphrase-HMAC, RSA-PSS
// body signing) and loading of encrypted credential bundles.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated venues.
type HMACAuth struct {
	Key        string
	Secret     string
	Passphrase string // only for passphrase-HMAC venues
}

// QuerySignature signs a canonical query string (Binance-style: the exact
// byte sequence the server receives, timestamp included) and returns the
// hex-encoded HMAC-SHA256 digest.
func (h *HMACAuth) QuerySignature(query string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// PassphraseHeaders returns the KuCoin-style authentication headers: the
// request signature is HMAC-SHA256(secret, timestamp+method+path+body) in
// base64, and the passphrase is itself HMAC-signed (key version 2).
//
// Returned header keys:
//   - KC-API-KEY
//   - KC-API-SIGN
//   - KC-API-TIMESTAMP
//   - KC-API-PASSPHRASE
//   - KC-API-KEY-VERSION
func (h *HMACAuth) PassphraseHeaders(method, path, body string) map[string]string {
	return h.PassphraseHeadersAt(method, path, body, time.Now().UnixMilli())
}

// PassphraseHeadersAt is PassphraseHeaders with a caller-supplied millisecond
// timestamp, for deterministic testing.
func (h *HMACAuth) PassphraseHeadersAt(method, path, body string, unixMillis int64) map[string]string {
	ts := strconv.FormatInt(unixMillis, 10)

	sig := hmacSHA256Base64([]byte(h.Secret), ts+method+path+body)
	passSig := hmacSHA256Base64([]byte(h.Secret), h.Passphrase)

	return map[string]string{
		"KC-API-KEY":         h.Key,
		"KC-API-SIGN":        sig,
		"KC-API-TIMESTAMP":   ts,
		"KC-API-PASSPHRASE":  passSig,
		"KC-API-KEY-VERSION": "2",
	}
}

// Configured reports whether the bundle can sign requests. Passphrase venues
// additionally require the passphrase.
func (h *HMACAuth) Configured(needPassphrase bool) bool {
	if h.Key == "" || h.Secret == "" {
		return false
	}
	if needPassphrase && h.Passphrase == "" {
		return false
	}
	return true
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
