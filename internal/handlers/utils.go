package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/securelogin/apiserver/internal/session"
)

type contextKey string

const contextClaimsKey contextKey = "session_claims"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// claimsFromContext returns the session claims the middleware attached, or
// nil when no valid session was presented.
func claimsFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(contextClaimsKey).(*session.Claims)
	return claims
}

func withClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
