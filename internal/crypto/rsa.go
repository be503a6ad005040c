package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"
)

// BodySigner signs canonical JSON request bodies with RSA-PSS-SHA256 and
// injects the signature back into the body, the scheme Invex requires for
// every authenticated call. The signed byte sequence is exactly the
// canonical body (sorted keys, no signature field); the transmitted body is
// the same object with the hex signature added under "signature".
type BodySigner struct {
	key *rsa.PrivateKey
	loc *time.Location
}

// NewBodySigner parses an RSA private key given as hex-encoded DER (the
// venue's key download format) or as a PEM block (PKCS#8 with PKCS#1
// fallback) and returns a signer whose expiry timestamps are rendered in
// the venue's timezone.
func NewBodySigner(keyMaterial string, loc *time.Location) (*BodySigner, error) {
	key, err := parseRSAPrivateKey(keyMaterial)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &BodySigner{key: key, loc: loc}, nil
}

func parseRSAPrivateKey(material string) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode([]byte(material)); block != nil {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			pkcs1, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if pkcs1Err != nil {
				return nil, fmt.Errorf("crypto: parse PEM private key: %w (pkcs1: %v)", err, pkcs1Err)
			}
			return pkcs1, nil
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("crypto: expected RSA private key, got %T", key)
		}
		return rsaKey, nil
	}

	der, err := hex.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is neither PEM nor hex DER: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse DER private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("crypto: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// ExpireAt renders now+ttl as "YYYY-MM-DD HH:MM:SS" in the signer's
// timezone, the format the venue validates signatures against.
func (s *BodySigner) ExpireAt(now time.Time, ttl time.Duration) string {
	return now.Add(ttl).In(s.loc).Format("2006-01-02 15:04:05")
}

// SignBody canonicalises payload (JSON with lexicographically sorted keys),
// signs the canonical bytes with RSA-PSS-SHA256, and returns the augmented
// body containing the signature together with the hex signature itself.
// The payload must already carry its expire_at field; SignBody never
// mutates the input map.
func (s *BodySigner) SignBody(payload map[string]any) ([]byte, string, error) {
	// encoding/json marshals map keys in sorted order, which is exactly the
	// canonical form the server reconstructs before verifying.
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: canonicalise body: %w", err)
	}

	digest := sha256.Sum256(canonical)
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return nil, "", fmt.Errorf("crypto: sign body: %w", err)
	}
	sigHex := hex.EncodeToString(sig)

	augmented := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		augmented[k] = v
	}
	augmented["signature"] = sigHex

	body, err := json.Marshal(augmented)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: marshal signed body: %w", err)
	}
	return body, sigHex, nil
}

// Verify checks a signature produced by SignBody against the canonical form
// of payload. Used by tests; venues perform the server-side equivalent.
func (s *BodySigner) Verify(payload map[string]any, sigHex string) error {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(canonical)
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
}
