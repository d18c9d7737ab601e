package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const testTokenHeader = "X-Test-Token"

// requireTestToken guards the /api/test endpoints with a shared token.
// When expected is empty, the middleware is a no-op.
func requireTestToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(testTokenHeader))
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				http.Error(w, "invalid test token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
