// Package mw contains HTTP middleware for the leadgrid-api.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// ContextKey is a type for context keys.
type ContextKey string

// SessionKey is the context key for the authenticated session claims.
const SessionKey ContextKey = "session_claims"

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(token string) (*service.SessionClaims, error)
}

// Auth returns a middleware that requires a valid bearer token and
// stores the session claims in the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession extracts the session claims from the request context, or
// nil when the request was not authenticated.
func GetSession(ctx context.Context) *service.SessionClaims {
	claims, _ := ctx.Value(SessionKey).(*service.SessionClaims)
	return claims
}
