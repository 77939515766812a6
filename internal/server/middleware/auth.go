// Package middleware provides HTTP middleware for bearer token authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// clientKey is the context key for storing the authenticated client name.
const clientKey ContextKey = "client"

// TokenValidator is an interface for validating bearer tokens.
// This allows the middleware to work with any token service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (ClientGetter, error)
}

// ClientGetter is an interface for extracting the client name from token claims.
type ClientGetter interface {
	GetClient() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds
// the client name to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), clientKey, claims.GetClient())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header, or from the
// access_token query parameter for EventSource clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		return token, token != ""
	}

	// Handle case-insensitive "Bearer" prefix
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="booksmith"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// GetClient extracts the authenticated client name from the request context.
func GetClient(r *http.Request) (string, error) {
	client, ok := r.Context().Value(clientKey).(string)
	if !ok {
		return "", fmt.Errorf("client not found in request context")
	}
	return client, nil
}

// ClientKey returns the context key for the client name (for testing purposes).
func ClientKey() ContextKey {
	return clientKey
}
