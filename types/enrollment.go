package types

import (
	"time"

	"github.com/google/uuid"
)

// PendingEnrollment associates a user with a freshly generated TOTP secret
// that has not yet been verified. At most one exists per user; requesting
// enrollment again overwrites it, and verification consumes it.
type PendingEnrollment struct {
	// UserID identifies the user the secret was issued to.
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// Secret is the base32-encoded candidate secret. It grants nothing
	// until verification commits it onto the user.
	Secret string `json:"-" db:"secret"`

	// CreatedAt is when the secret was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
