// This is a **mock authentication service**. It hands out JWT tokens for any
// user id so the catalog API can be exercised without a login flow.
package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

const (
	defaultPort   = "8081"       // Default port for the authentication service
	defaultSecret = "jwt_secret" // Secret for signing JWT
)

var marshaler = &runtime.JSONBuiltin{}

// TokenResponse represents the response structure
type TokenResponse struct {
	Token string `json:"token"`
}

type tokenHandler struct {
	secret string
	logger *zap.Logger
}

// ServeHTTP issues a token for the user given by the user_id query parameter.
func (h *tokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "user_id must be a positive integer", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateToken(uint(userID), h.secret)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	data, err := marshaler.Marshal(TokenResponse{Token: token})
	if err != nil {
		http.Error(w, "Failed to encode token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", marshaler.ContentType(nil))
	_, _ = w.Write(data)
}

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}
	port := os.Getenv("AUTH_PORT")
	if port == "" {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/token", &tokenHandler{secret: secret, logger: logger})

	logger.Info("Authentication service running", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Fatal("Authentication service stopped", zap.Error(err))
	}
}
