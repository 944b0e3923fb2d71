// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Extracts the JWT from the Authorization header or token query parameter

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// extractToken pulls a bearer token from the Authorization header, falling
// back to the "token" query parameter. Browsers cannot set headers on
// EventSource requests, so the stream endpoint relies on the fallback.
// Returns the token and an error message (empty if successful).
func extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing authorization"
}

// Middleware creates an HTTP middleware that verifies the request token and
// adds the verified user id to the request context. Preflight OPTIONS
// requests pass through unauthenticated so CORS can work.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractToken(r)
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// writeUnauthorized sends a 401 with a JSON error body, matching the error
// shape of the API handlers behind the middleware.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
