package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "user"

// publicRoutes are reachable without a token.
var publicRoutes = map[string]map[string]bool{
	http.MethodPost: {
		"/v1/companies": true,
		"/v1/users":     true,
	},
	http.MethodGet: {
		"/healthz": true,
	},
}

// HTTPMiddleware rejects requests to protected routes that lack a valid
// bearer token and stores the authenticated user id in the request context.
func HTTPMiddleware(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isProtectedRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractTokenFromHeader(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		userID, err := ParseToken(tokenString, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserIDFromContext returns the user id stored by HTTPMiddleware.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userContextKey).(uint)
	return id, ok && id != 0
}

func extractTokenFromHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header required")
	}

	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return "", fmt.Errorf("invalid authorization format")
	}

	return tokenString, nil
}

func isProtectedRequest(r *http.Request) bool {
	return !publicRoutes[r.Method][strings.TrimSuffix(r.URL.Path, "/")]
}
