package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/securelogin/apiserver/internal/services"
	"github.com/securelogin/apiserver/types"
)

// AuthHandler provides the registration, enrollment, and login endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/setup-2fa", handler.BeginEnrollment)
	r.Post("/verify-2fa", handler.VerifyEnrollment)
	r.Post("/login", handler.Login)
	r.Get("/login", handler.LoginRequired)
	r.With(RequireVerified).Get("/me", handler.Me)
	r.With(RequireVerified).Patch("/me", handler.UpdateMe)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone_number"`
	Role     string `json:"role,omitempty"`
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyEnrollmentRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	Token string     `json:"access_token"`
	Role  string     `json:"role"`
	User  types.User `json:"user"`
}

type LockedResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone_number"`
}

// Register creates a new account. The account must complete authenticator
// enrollment before it can log in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.authService.Register(r.Context(), services.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// BeginEnrollment re-authenticates by password and returns a fresh secret
// with its enrollment URI and manual-entry key. Repeating the call discards
// the previous secret.
func (h *AuthHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	key, err := h.authService.BeginEnrollment(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// VerifyEnrollment validates the submitted code against the pending secret
// and activates the account.
func (h *AuthHandler) VerifyEnrollment(w http.ResponseWriter, r *http.Request) {
	var req VerifyEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if _, err := h.authService.VerifyEnrollment(r.Context(), req.Email, req.Password, req.TOTPCode); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "two-factor authentication verified; you can now log in",
	})
}

// Login validates password and TOTP code and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: result.Token,
		Role:  result.User.Role,
		User:  result.User,
	})
}

// LoginRequired is the target of guard redirects: landing here means the
// request carried no usable session.
func (h *AuthHandler) LoginRequired(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe lets the authenticated user change their own name and phone.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Name == "" && req.Phone == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, req.Name, req.Phone)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}
	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.User{}, false
	}
	return user, true
}

// writeAuthError maps service errors onto HTTP statuses. Invalid-credential
// responses deliberately carry no detail about which factor failed.
func writeAuthError(w http.ResponseWriter, err error) {
	var locked *services.AccountLockedError
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusForbidden, LockedResponse{
			Error:             "account temporarily locked due to failed attempts",
			RetryAfterSeconds: int(locked.RetryAfter.Seconds() + 0.5),
		})
	case errors.Is(err, services.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrDuplicateIdentity):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, services.ErrWeakCredential):
		writeError(w, http.StatusBadRequest, "missing fields or password shorter than 8 characters")
	case errors.Is(err, services.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid code")
	case errors.Is(err, services.ErrNoPendingEnrollment):
		writeError(w, http.StatusBadRequest, "no pending enrollment; request setup first")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "temporary failure, retry later")
	}
}
