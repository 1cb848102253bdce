package ingest

import (
	"crypto/subtle"
	"net/http"
)

// authMiddleware rejects requests missing a matching x-api-key header
// when apiKey is configured. An empty apiKey disables auth entirely,
// matching the Monitor's optional-auth environment variable.
func authMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				http.Error(w, "invalid or missing x-api-key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
