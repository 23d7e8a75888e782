package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	totplib "github.com/pquerna/otp/totp"
	"github.com/securelogin/apiserver/internal/audit"
	"github.com/securelogin/apiserver/internal/lockout"
	"github.com/securelogin/apiserver/internal/session"
	"github.com/securelogin/apiserver/internal/store"
	"github.com/securelogin/apiserver/internal/totp"
	"github.com/securelogin/apiserver/types"
)

const (
	testEmail    = "a@x.com"
	testPassword = "pw123456"
	maxAttempts  = 5
	cooldown     = 15 * time.Minute
)

// fakeUsers is an in-memory UserRepository.
type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]types.User)}
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, name, phone string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Name = name
	user.Phone = phone
	f.users[id] = user
	return user, nil
}

func (f *fakeUsers) CommitTOTPSecret(_ context.Context, id uuid.UUID, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.TOTPSecret = secret
	user.TOTPVerified = true
	f.users[id] = user
	return nil
}

func (f *fakeUsers) List(_ context.Context) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]types.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

// fakeEnrollments is an in-memory EnrollmentRepository.
type fakeEnrollments struct {
	mu      sync.Mutex
	pending map[uuid.UUID]types.PendingEnrollment
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{pending: make(map[uuid.UUID]types.PendingEnrollment)}
}

func (f *fakeEnrollments) Upsert(_ context.Context, userID uuid.UUID, secret string) (types.PendingEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := types.PendingEnrollment{UserID: userID, Secret: secret, CreatedAt: time.Now()}
	f.pending[userID] = pending
	return pending, nil
}

func (f *fakeEnrollments) Get(_ context.Context, userID uuid.UUID) (types.PendingEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending, ok := f.pending[userID]
	if !ok {
		return types.PendingEnrollment{}, store.ErrNotFound
	}
	return pending, nil
}

func (f *fakeEnrollments) Delete(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[userID]; !ok {
		return store.ErrNotFound
	}
	delete(f.pending, userID)
	return nil
}

type fixture struct {
	svc         *AuthService
	users       *fakeUsers
	enrollments *fakeEnrollments
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:       newFakeUsers(),
		enrollments: newFakeEnrollments(),
		now:         time.Unix(1_700_000_010, 0).UTC(),
	}
	f.svc = NewAuthService(
		f.users,
		f.enrollments,
		totp.NewEngine("SecureLoginApp"),
		lockout.New(maxAttempts, cooldown),
		session.NewCodec("test-secret", 30*time.Minute),
		audit.NewStream(nil, "auth-events"),
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totplib.GenerateCodeCustom(secret, at, totplib.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func (f *fixture) register(t *testing.T) types.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterParams{
		Email:    testEmail,
		Password: testPassword,
		Name:     "A",
		Phone:    "+15551234567",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func (f *fixture) activate(t *testing.T) string {
	t.Helper()
	f.register(t)
	key, err := f.svc.BeginEnrollment(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	if _, err := f.svc.VerifyEnrollment(context.Background(), testEmail, testPassword, codeFor(t, key.Secret, f.now)); err != nil {
		t.Fatalf("verify enrollment: %v", err)
	}
	return key.Secret
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params RegisterParams
	}{
		{"short password", RegisterParams{Email: testEmail, Password: "pw1234", Name: "A"}},
		{"blank email", RegisterParams{Password: testPassword, Name: "A"}},
		{"blank name", RegisterParams{Email: testEmail, Password: testPassword}},
		{"bogus role", RegisterParams{Email: testEmail, Password: testPassword, Name: "A", Role: "ROOT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Register(ctx, tc.params); !errors.Is(err, ErrWeakCredential) {
				t.Fatalf("err = %v, want ErrWeakCredential", err)
			}
		})
	}
}

func TestRegisterDefaultsAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t)
	if user.Role != types.RoleClient {
		t.Fatalf("role = %q, want CLIENT", user.Role)
	}
	if user.Active() {
		t.Fatal("fresh registration must not be active")
	}
	if user.PasswordHash == testPassword || user.PasswordHash == "" {
		t.Fatal("password stored without hashing")
	}

	// Same email, different case: still a duplicate.
	_, err := f.svc.Register(ctx, RegisterParams{
		Email:    "A@X.com",
		Password: testPassword,
		Name:     "A",
	})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("err = %v, want ErrDuplicateIdentity", err)
	}
}

func TestBeginEnrollmentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	if _, err := f.svc.BeginEnrollment(ctx, "missing@x.com", testPassword); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown identity err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.BeginEnrollment(ctx, testEmail, "wrong-password"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredential", err)
	}
}

func TestEnrollmentRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret := f.activate(t)

	user, err := f.users.GetByEmail(ctx, testEmail)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !user.Active() {
		t.Fatal("expected active account after verified enrollment")
	}
	if _, err := f.enrollments.Get(ctx, user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("pending enrollment not consumed")
	}

	result, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected session token")
	}
	if result.User.Role != types.RoleClient {
		t.Fatalf("session role = %q, want CLIENT", result.User.Role)
	}
}

func TestBeginEnrollmentOverwritesPendingSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	first, err := f.svc.BeginEnrollment(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("first begin: %v", err)
	}
	second, err := f.svc.BeginEnrollment(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("expected a fresh secret on re-enrollment")
	}

	// A code for the discarded secret no longer verifies.
	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, testPassword, codeFor(t, first.Secret, f.now)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("stale secret err = %v, want ErrInvalidCode", err)
	}
	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, testPassword, codeFor(t, second.Secret, f.now)); err != nil {
		t.Fatalf("current secret verify: %v", err)
	}
}

func TestVerifyEnrollmentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, testPassword, "123456"); !errors.Is(err, ErrNoPendingEnrollment) {
		t.Fatalf("no pending err = %v, want ErrNoPendingEnrollment", err)
	}

	key, err := f.svc.BeginEnrollment(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, "wrong-password", codeFor(t, key.Secret, f.now)); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredential", err)
	}
	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, testPassword, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong code err = %v, want ErrInvalidCode", err)
	}

	// Failed verification changed nothing; the right code still works.
	if _, err := f.svc.VerifyEnrollment(ctx, testEmail, testPassword, codeFor(t, key.Secret, f.now)); err != nil {
		t.Fatalf("verify after failures: %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret := f.activate(t)

	unknownErr := func() error {
		_, err := f.svc.Login(ctx, "missing@x.com", testPassword, codeFor(t, secret, f.now))
		return err
	}()
	wrongPasswordErr := func() error {
		_, err := f.svc.Login(ctx, testEmail, "wrong-password", codeFor(t, secret, f.now))
		return err
	}()
	wrongCodeErr := func() error {
		_, err := f.svc.Login(ctx, testEmail, testPassword, "000000")
		return err
	}()

	for name, err := range map[string]error{
		"unknown identity": unknownErr,
		"wrong password":   wrongPasswordErr,
		"wrong code":       wrongCodeErr,
	} {
		if !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("%s err = %v, want ErrInvalidCredential", name, err)
		}
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	// Correct password, but enrollment never completed.
	if _, err := f.svc.Login(ctx, testEmail, testPassword, "123456"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestLoginNeverSucceedsWithPendingUnverifiedSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	key, err := f.svc.BeginEnrollment(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// A valid code for an unverified secret must not grant login.
	if _, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, key.Secret, f.now)); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret := f.activate(t)

	for i := 0; i < maxAttempts; i++ {
		if _, err := f.svc.Login(ctx, testEmail, "wrong-password", "000000"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredential", i+1, err)
		}
	}

	// Correct credentials are irrelevant while blocked.
	var locked *AccountLockedError
	_, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now))
	if !errors.As(err, &locked) {
		t.Fatalf("err = %v, want AccountLockedError", err)
	}
	if locked.RetryAfter <= 0 || locked.RetryAfter > cooldown {
		t.Fatalf("RetryAfter = %s", locked.RetryAfter)
	}

	// Still blocked partway through the cooldown.
	f.advance(cooldown / 2)
	if _, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now)); !errors.As(err, &locked) {
		t.Fatalf("mid-cooldown err = %v, want AccountLockedError", err)
	}

	// Cooldown over: the same credentials succeed.
	f.advance(cooldown/2 + time.Second)
	if _, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now)); err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secret := f.activate(t)

	for i := 0; i < maxAttempts-1; i++ {
		_, _ = f.svc.Login(ctx, testEmail, "wrong-password", "000000")
	}
	if _, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now)); err != nil {
		t.Fatalf("login at threshold edge: %v", err)
	}

	// Counter restarted: the next few failures stay under the threshold.
	for i := 0; i < maxAttempts-1; i++ {
		if _, err := f.svc.Login(ctx, testEmail, "wrong-password", "000000"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("post-reset attempt %d err = %v", i+1, err)
		}
	}
	if _, err := f.svc.Login(ctx, testEmail, testPassword, codeFor(t, secret, f.now)); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

// TestFullScenario walks the documented end-to-end sequence.
func TestFullScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, RegisterParams{
		Email:    "a@x.com",
		Password: "pw123456",
		Name:     "A",
		Phone:    "+15551234567",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	key, err := f.svc.BeginEnrollment(ctx, "a@x.com", "pw123456")
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	if _, err := f.svc.VerifyEnrollment(ctx, "a@x.com", "pw123456", codeFor(t, key.Secret, f.now)); err != nil {
		t.Fatalf("verify enrollment: %v", err)
	}

	result, err := f.svc.Login(ctx, "a@x.com", "pw123456", codeFor(t, key.Secret, f.now))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.Role != types.RoleClient {
		t.Fatalf("role = %q, want CLIENT", result.User.Role)
	}

	for i := 0; i < maxAttempts; i++ {
		_, _ = f.svc.Login(ctx, "a@x.com", "wrong-password", "000000")
	}
	var locked *AccountLockedError
	if _, err := f.svc.Login(ctx, "a@x.com", "pw123456", codeFor(t, key.Secret, f.now)); !errors.As(err, &locked) {
		t.Fatalf("err = %v, want AccountLockedError", err)
	}
}
