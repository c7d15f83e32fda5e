package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Market API authentication headers.
const (
	HeaderAPIKey     = "SIMEX-API-KEY"
	HeaderTimestamp  = "SIMEX-TIMESTAMP"
	HeaderPassphrase = "SIMEX-PASSPHRASE"
	HeaderSignature  = "SIMEX-SIGNATURE"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the market API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// Enabled reports whether credentials are configured. Requests from a
// client without credentials are sent unsigned.
func (h *HMACAuth) Enabled() bool {
	return h != nil && h.Key != "" && h.Secret != ""
}

// Headers returns the authentication headers for a request. The signature
// is base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderAPIKey:     h.Key,
		HeaderTimestamp:  ts,
		HeaderPassphrase: h.Passphrase,
		HeaderSignature:  h.Sign(ts + method + path + body),
	}
}

// Sign returns the base64 HMAC-SHA256 of message under the decoded secret.
// A secret that is not valid base64 is used as raw bytes.
func (h *HMACAuth) Sign(message string) string {
	secret, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		secret = []byte(h.Secret)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the signature of message.
func (h *HMACAuth) Verify(message, sig string) bool {
	return hmac.Equal([]byte(h.Sign(message)), []byte(sig))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
