package types

import (
	"time"

	"github.com/google/uuid"
)

// Role values assignable to a user. Role is fixed at registration;
// changing it afterwards is an administrative concern handled elsewhere.
const (
	RoleAdmin  = "ADMIN"
	RoleClient = "CLIENT"
)

// User represents an account in the system.
// It contains identity, role, two-factor state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Email is the unique, case-normalized login identifier.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Phone is the user's phone number. Optional.
	Phone string `json:"phone_number,omitempty" db:"phone_number"`

	// Role indicates the user's authorization level within the
	// system (RoleAdmin or RoleClient).
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// TOTPSecret is the committed authenticator secret. It is only set
	// once enrollment has been verified, and is never exposed.
	TOTPSecret string `json:"-" db:"totp_secret"`

	// TOTPVerified reports whether the user has proven possession of a
	// working authenticator. Login is refused until it is true.
	TOTPVerified bool `json:"totp_verified" db:"totp_verified"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Active reports whether the account has completed two-factor enrollment
// and may therefore log in.
func (u User) Active() bool {
	return u.TOTPVerified && u.TOTPSecret != ""
}
