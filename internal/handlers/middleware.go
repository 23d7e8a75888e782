package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/securelogin/apiserver/internal/authz"
	"github.com/securelogin/apiserver/internal/session"
)

// Authenticate parses a bearer session token if one is presented and
// attaches its claims to the request context. Absent, expired, or
// malformed tokens leave the context without claims; the guard downstream
// treats all three the same way. It never rejects a request itself.
func Authenticate(codec *session.Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := codec.Parse(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// Guard enforces the authorization decision for a resource class:
// unauthenticated requests are redirected to login, misrouted authenticated
// users to their own home.
func Guard(class authz.ResourceClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := authz.Authorize(claimsFromContext(r.Context()), class)
			if !decision.Allow {
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerified rejects sessions issued before two-factor enrollment
// completed. Guarded routes already have claims in context.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || !claims.TOTPVerified {
			writeError(w, http.StatusForbidden, "two-factor verification required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
