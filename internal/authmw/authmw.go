// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	bodyMissing = `{"error":"access token required"}`
	bodyInvalid = `{"error":"invalid or expired token"}`
)

// BearerToken returns middleware that requires the Authorization header to
// carry token, either as "Bearer <token>" or as the bare token. A missing
// token is answered with 401 and a wrong one with 403. Comparison is
// constant-time.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := extractToken(r.Header.Get("Authorization"))
			if got == "" {
				writeJSONError(w, http.StatusUnauthorized, bodyMissing)
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				writeJSONError(w, http.StatusForbidden, bodyInvalid)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(header string) string {
	if tok, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return strings.TrimSpace(header)
}

func writeJSONError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
