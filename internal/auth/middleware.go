// ABOUTME: HTTP middleware for JWT authentication on API and bus endpoints
// ABOUTME: Accepts Authorization headers and token query parameters

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithClient returns a context carrying the authenticated client ID.
func WithClient(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, contextKey{}, clientID)
}

// ClientFromContext returns the authenticated client ID, or "" when the
// request was not authenticated.
func ClientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// extractToken pulls a token from the Authorization header or, failing
// that, the token query parameter. WebSocket clients in browsers cannot
// set request headers, so the query form is accepted on equal footing.
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

// Middleware creates an HTTP middleware that extracts and validates JWT
// tokens, adding the client ID to the request context.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			clientID, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), clientID)))
		})
	}
}
