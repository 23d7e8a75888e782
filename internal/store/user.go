package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/securelogin/apiserver/types"
)

const pgUniqueViolation = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	const query = `
		SELECT id, email, name, phone_number, role, password_hash, totp_secret, totp_verified, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, email, name, phone_number, role, password_hash, totp_secret, totp_verified, created_at, updated_at
		FROM users
		WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, name, phone_number, role, password_hash, totp_secret, totp_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Name,
		nullableString(user.Phone),
		user.Role,
		user.PasswordHash,
		nullableString(user.TOTPSecret),
		user.TOTPVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile changes the mutable profile attributes (name and phone).
// Email, role, password, and two-factor state are not touched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (types.User, error) {
	const query = `
		UPDATE users
		SET name = $1,
			phone_number = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, name, nullableString(phone), time.Now(), id)
	if err != nil {
		return types.User{}, err
	}
	if err := requireAffected(result); err != nil {
		return types.User{}, err
	}
	return r.GetByID(ctx, id)
}

// CommitTOTPSecret writes a verified secret onto the user and marks the
// account active. Called exactly once per successful enrollment.
func (r *UserRepository) CommitTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	const query = `
		UPDATE users
		SET totp_secret = $1,
			totp_verified = TRUE,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, secret, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT id, email, name, phone_number, role, password_hash, totp_secret, totp_verified, created_at, updated_at
		FROM users
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var phone, secret sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&phone,
		&user.Role,
		&user.PasswordHash,
		&secret,
		&user.TOTPVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	user.Phone = phone.String
	user.TOTPSecret = secret.String
	return user, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
