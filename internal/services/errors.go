package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateIdentity is returned when registering an email that
	// already exists.
	ErrDuplicateIdentity = errors.New("identity already registered")

	// ErrWeakCredential is returned when registration input fails
	// validation before any state is touched.
	ErrWeakCredential = errors.New("weak or missing credential")

	// ErrNotFound is returned when an operation names an identity that
	// does not exist and the operation is allowed to say so.
	ErrNotFound = errors.New("identity not found")

	// ErrInvalidCredential covers every login failure the caller is not
	// allowed to tell apart: unknown identity, wrong password, wrong code,
	// account not yet active.
	ErrInvalidCredential = errors.New("invalid credentials")

	// ErrInvalidCode is returned during enrollment verification, where the
	// password has already been re-checked and naming the failed factor
	// leaks nothing.
	ErrInvalidCode = errors.New("invalid code")

	// ErrNoPendingEnrollment is returned when verification is attempted
	// with no secret outstanding.
	ErrNoPendingEnrollment = errors.New("no pending enrollment")
)

// AccountLockedError reports a login rejected by the lockout policy,
// carrying the remaining cooldown for the user-facing message.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}
