package cronjob

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SecretHeader carries the shared secret on every trigger request.
const SecretHeader = "X-Cron-Secret"

// ValidateSecret checks the X-Cron-Secret header against expected.
//
// Header names are matched case-insensitively across all keys, so both a
// canonical http.Header and a raw map with "x-cron-secret" are accepted.
func ValidateSecret(headers http.Header, expected string) error {
	got, ok := headerValue(headers, SecretHeader)
	if !ok || got == "" {
		return NewError(KindMissingSecret, "Missing %s header", SecretHeader)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return NewError(KindInvalidSecret, "Invalid cron secret")
	}
	return nil
}

func headerValue(h http.Header, name string) (string, bool) {
	if h == nil {
		return "", false
	}
	if vs, ok := h[http.CanonicalHeaderKey(name)]; ok && len(vs) > 0 {
		return vs[0], true
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}
