// Package session issues and validates the bearer credential returned by a
// successful login. Tokens are self-contained HS256 JWTs; the bound role is
// fixed at issuance and never re-read from the user afterwards.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/securelogin/apiserver/types"
)

// Claims is the session payload. Subject carries the user id.
type Claims struct {
	Email        string `json:"email"`
	Role         string `json:"role"`
	TOTPVerified bool   `json:"totp_verified"`
	jwt.RegisteredClaims
}

// Codec signs and parses session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// Issue creates a token bound to the user's identity and role as of now.
func (c *Codec) Issue(user types.User, now time.Time) (string, error) {
	claims := Claims{
		Email:        user.Email,
		Role:         user.Role,
		TOTPVerified: user.TOTPVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse validates a token and returns its claims. Bad signatures, wrong
// signing methods, expired tokens and missing subjects all yield an error;
// callers treat that as "no session presented".
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}
