package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// HMACAuth holds the credentials required for HMAC-authenticated REST
// requests.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret
	Passphrase string // API passphrase, where the venue uses one
}

// OKXHeaders returns the OK-ACCESS-* headers for an OKX v5 request. The
// signature is base64(HMAC-SHA256(secret, timestamp+method+path+body)) with
// an ISO-8601 millisecond timestamp.
func (h *HMACAuth) OKXHeaders(method, path, body string) map[string]string {
	return h.OKXHeadersAt(method, path, body, time.Now())
}

// OKXHeadersAt is like OKXHeaders but lets the caller supply the time
// (useful for deterministic testing).
func (h *HMACAuth) OKXHeadersAt(method, path, body string, at time.Time) map[string]string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	sig := HMACSHA256Base64([]byte(h.Secret), ts+method+path+body)
	return map[string]string{
		"OK-ACCESS-KEY":        h.Key,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": h.Passphrase,
	}
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=****}", redact(h.Key))
}

// HMACSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func HMACSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
