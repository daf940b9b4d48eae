package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth enforces a static bearer token on the wrapped routes. An empty
// token disables the check.
func Auth(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing or invalid credential"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
