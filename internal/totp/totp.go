// Package totp wraps time-based one-time password generation and
// validation for authenticator enrollment and two-factor login.
package totp

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// secretSize is 20 random bytes, the 160 bits RFC 4226 recommends.
	secretSize = 20

	// period is the code validity window in seconds.
	period = 30

	// skew is how many adjacent periods are accepted, tolerating ±30s
	// of clock drift between server and authenticator.
	skew = 1

	digits = otp.DigitsSix

	manualKeyGroupSize = 4
)

// Key is a freshly generated enrollment secret in the three encodings a
// client needs: the raw base32 secret, the otpauth:// URI rendered as a QR
// code, and the grouped key for manual entry.
type Key struct {
	Secret    string `json:"secret"`
	URI       string `json:"secret_uri"`
	ManualKey string `json:"manual_entry_key"`
}

// Engine generates enrollment secrets and validates submitted codes.
type Engine struct {
	issuer string
}

func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer}
}

// Enroll produces a new random secret bound to the account label.
// Pure generation; nothing is persisted here.
func (e *Engine) Enroll(account string) (Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		SecretSize:  secretSize,
		Period:      period,
		Digits:      digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, err
	}
	secret := key.Secret()
	return Key{
		Secret:    secret,
		URI:       key.URL(),
		ManualKey: ManualKey(secret),
	}, nil
}

// ValidateCode reports whether code matches the secret at the given time,
// accepting the current period and one period either side. Codes of the
// wrong shape are rejected before any HMAC work. The underlying comparison
// is constant time.
func (e *Engine) ValidateCode(secret, code string, now time.Time) bool {
	if !wellFormed(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// ManualKey groups a base32 secret into blocks of four for typing into an
// authenticator by hand.
func ManualKey(secret string) string {
	var groups []string
	for i := 0; i < len(secret); i += manualKeyGroupSize {
		end := i + manualKeyGroupSize
		if end > len(secret) {
			end = len(secret)
		}
		groups = append(groups, secret[i:end])
	}
	return strings.Join(groups, " ")
}

func wellFormed(code string) bool {
	if len(code) != digits.Length() {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
