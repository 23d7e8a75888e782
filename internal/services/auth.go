package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/securelogin/apiserver/internal/audit"
	"github.com/securelogin/apiserver/internal/lockout"
	"github.com/securelogin/apiserver/internal/session"
	"github.com/securelogin/apiserver/internal/store"
	"github.com/securelogin/apiserver/internal/totp"
	"github.com/securelogin/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// dummyDigest is a bcrypt digest compared against when the identity does
// not exist, so unknown-email and wrong-password failures cost the same.
var dummyDigest = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (types.User, error)
	CommitTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
	List(ctx context.Context) ([]types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EnrollmentRepository defines persistence operations for pending
// enrollments.
type EnrollmentRepository interface {
	Upsert(ctx context.Context, userID uuid.UUID, secret string) (types.PendingEnrollment, error)
	Get(ctx context.Context, userID uuid.UUID) (types.PendingEnrollment, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// AuthService orchestrates registration, authenticator enrollment, and
// two-factor login.
type AuthService struct {
	users       UserRepository
	enrollments EnrollmentRepository
	totp        *totp.Engine
	lockout     *lockout.Tracker
	sessions    *session.Codec
	audit       *audit.Stream

	now func() time.Time
}

func NewAuthService(
	users UserRepository,
	enrollments EnrollmentRepository,
	totpEngine *totp.Engine,
	tracker *lockout.Tracker,
	sessions *session.Codec,
	auditStream *audit.Stream,
) *AuthService {
	return &AuthService{
		users:       users,
		enrollments: enrollments,
		totp:        totpEngine,
		lockout:     tracker,
		sessions:    sessions,
		audit:       auditStream,
		now:         time.Now,
	}
}

// RegisterParams is the input to Register.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     string
}

// LoginResult is a successful login: the session token plus a snapshot of
// the identity it was bound to.
type LoginResult struct {
	Token string
	User  types.User
}

// Register creates a new identity. The account cannot log in until it has
// enrolled and verified an authenticator.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (types.User, error) {
	email := normalizeEmail(params.Email)
	name := strings.TrimSpace(params.Name)
	if email == "" || name == "" || len(params.Password) < minPasswordLength {
		return types.User{}, ErrWeakCredential
	}

	role := params.Role
	if role == "" {
		role = types.RoleClient
	}
	if role != types.RoleClient && role != types.RoleAdmin {
		return types.User{}, ErrWeakCredential
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(params.Phone),
		Role:         role,
		PasswordHash: string(digest),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateIdentity
		}
		return types.User{}, fmt.Errorf("create identity: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventRegistered,
		Email:   user.Email,
		Success: true,
		At:      s.now(),
		Metadata: map[string]string{
			"role": user.Role,
		},
	})
	return user, nil
}

// BeginEnrollment re-authenticates the identity by password and issues a
// fresh secret, overwriting any earlier pending one. Safe to repeat; an
// unscanned secret is simply discarded.
func (s *AuthService) BeginEnrollment(ctx context.Context, email, password string) (totp.Key, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return totp.Key{}, ErrNotFound
		}
		return totp.Key{}, fmt.Errorf("look up identity: %w", err)
	}
	if !verifyPassword(user.PasswordHash, password) {
		return totp.Key{}, ErrInvalidCredential
	}

	key, err := s.totp.Enroll(user.Email)
	if err != nil {
		return totp.Key{}, fmt.Errorf("generate secret: %w", err)
	}
	if _, err := s.enrollments.Upsert(ctx, user.ID, key.Secret); err != nil {
		return totp.Key{}, fmt.Errorf("stage enrollment: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventEnrollmentStarted,
		Email:   user.Email,
		Success: true,
		At:      s.now(),
	})
	return key, nil
}

// VerifyEnrollment re-authenticates by password, then validates the
// submitted code against the pending secret. Success commits the secret
// onto the identity, activates the account, and consumes the pending
// enrollment. Failure changes nothing; enrollment failures never feed the
// login lockout.
func (s *AuthService) VerifyEnrollment(ctx context.Context, email, password, code string) (types.User, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredential
		}
		return types.User{}, fmt.Errorf("look up identity: %w", err)
	}
	if !verifyPassword(user.PasswordHash, password) {
		return types.User{}, ErrInvalidCredential
	}

	pending, err := s.enrollments.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNoPendingEnrollment
		}
		return types.User{}, fmt.Errorf("load pending enrollment: %w", err)
	}

	if !s.totp.ValidateCode(pending.Secret, code, s.now()) {
		return types.User{}, ErrInvalidCode
	}

	if err := s.users.CommitTOTPSecret(ctx, user.ID, pending.Secret); err != nil {
		return types.User{}, fmt.Errorf("commit secret: %w", err)
	}
	if err := s.enrollments.Delete(ctx, user.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("consume pending enrollment: %w", err)
	}

	user.TOTPSecret = pending.Secret
	user.TOTPVerified = true

	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventEnrollmentVerified,
		Email:   user.Email,
		Success: true,
		At:      s.now(),
	})
	return user, nil
}

// Login validates password and TOTP code for an active identity and issues
// a session. The lockout check runs first so blocked accounts are rejected
// cheaply and uniformly; afterwards every failure looks the same to the
// caller regardless of which factor, or whether the account, was wrong.
func (s *AuthService) Login(ctx context.Context, email, password, code string) (LoginResult, error) {
	email = normalizeEmail(email)
	now := s.now()

	if allowed, retryAfter := s.lockout.CheckAllowed(email, now); !allowed {
		s.audit.Emit(ctx, audit.Event{
			Type:     audit.EventLoginFailed,
			Email:    email,
			At:       now,
			Metadata: map[string]string{"reason": "locked"},
		})
		return LoginResult{}, &AccountLockedError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison so unknown identities cost the same
			// as a wrong password.
			verifyPassword(string(dummyDigest), password)
			s.recordFailure(ctx, email, now, "unknown_identity")
			return LoginResult{}, ErrInvalidCredential
		}
		return LoginResult{}, fmt.Errorf("look up identity: %w", err)
	}

	passwordOK := verifyPassword(user.PasswordHash, password)
	if !passwordOK || !user.Active() {
		reason := "password_mismatch"
		if passwordOK {
			reason = "inactive_account"
		}
		s.recordFailure(ctx, email, now, reason)
		return LoginResult{}, ErrInvalidCredential
	}

	if !s.totp.ValidateCode(user.TOTPSecret, code, now) {
		s.recordFailure(ctx, email, now, "code_mismatch")
		return LoginResult{}, ErrInvalidCredential
	}

	s.lockout.RecordSuccess(email)

	token, err := s.sessions.Issue(user, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}

	s.audit.Emit(ctx, audit.Event{
		Type:    audit.EventLoginSucceeded,
		Email:   user.Email,
		Success: true,
		At:      now,
		Metadata: map[string]string{
			"role": user.Role,
		},
	})
	return LoginResult{Token: token, User: user}, nil
}

// recordFailure durably counts the failed attempt before the error is
// surfaced, and emits lockout events when the threshold trips.
func (s *AuthService) recordFailure(ctx context.Context, email string, now time.Time, reason string) {
	s.lockout.RecordFailure(email, now)

	s.audit.Emit(ctx, audit.Event{
		Type:     audit.EventLoginFailed,
		Email:    email,
		At:       now,
		Metadata: map[string]string{"reason": reason},
	})

	if allowed, retryAfter := s.lockout.CheckAllowed(email, now); !allowed {
		s.audit.Emit(ctx, audit.Event{
			Type:  audit.EventLockout,
			Email: email,
			At:    now,
			Metadata: map[string]string{
				"retry_after": retryAfter.String(),
			},
		})
	}
}

func verifyPassword(digest, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
