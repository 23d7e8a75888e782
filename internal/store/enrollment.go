package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/securelogin/apiserver/types"
)

// EnrollmentRepository handles persistence for pending TOTP enrollments.
// The table is keyed by user id, so a user holds at most one pending secret.
type EnrollmentRepository struct {
	db *sql.DB
}

func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Upsert replaces any existing pending enrollment for the user in a single
// statement. Readers racing this call observe either the previous secret or
// the new one, never a torn row.
func (r *EnrollmentRepository) Upsert(ctx context.Context, userID uuid.UUID, secret string) (types.PendingEnrollment, error) {
	pending := types.PendingEnrollment{
		UserID:    userID,
		Secret:    secret,
		CreatedAt: time.Now(),
	}

	const query = `
		INSERT INTO pending_enrollments (user_id, secret, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret,
			created_at = EXCLUDED.created_at`
	if _, err := r.db.ExecContext(ctx, query, pending.UserID, pending.Secret, pending.CreatedAt); err != nil {
		return types.PendingEnrollment{}, err
	}
	return pending, nil
}

func (r *EnrollmentRepository) Get(ctx context.Context, userID uuid.UUID) (types.PendingEnrollment, error) {
	const query = `
		SELECT user_id, secret, created_at
		FROM pending_enrollments
		WHERE user_id = $1`
	var pending types.PendingEnrollment
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&pending.UserID,
		&pending.Secret,
		&pending.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PendingEnrollment{}, ErrNotFound
		}
		return types.PendingEnrollment{}, err
	}
	return pending, nil
}

func (r *EnrollmentRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	const query = `DELETE FROM pending_enrollments WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}
