package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for signed exchange REST requests.
type HMACAuth struct {
	Key    string // API key, sent in the X-API-KEY header
	Secret string // API secret, the HMAC key
}

// SignQuery appends a timestamp and an HMAC-SHA256 hex signature to a
// canonical query string, the scheme shared by the supported exchanges.
func (h *HMACAuth) SignQuery(query string) string {
	return h.SignQueryAt(query, time.Now().UnixMilli())
}

// SignQueryAt is like SignQuery with a caller-supplied millisecond timestamp
// (useful for deterministic testing).
func (h *HMACAuth) SignQueryAt(query string, unixMilli int64) string {
	ts := strconv.FormatInt(unixMilli, 10)
	payload := query + "&timestamp=" + ts

	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))

	return payload + "&signature=" + sig
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
