package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apierrors "github.com/CedrosPay/secheaders/internal/errors"
)

// adminAuth protects the admin API and /metrics with a bearer key.
// If no API key is configured, the endpoints are accessible without authentication.
// Otherwise requests must include an "Authorization: Bearer {key}" header.
func adminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="secheaders"`)
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Invalid or missing admin API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
