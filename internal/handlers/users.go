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

// UserAdminHandler provides the administrative user CRUD endpoints.
// Routes using it sit behind the admin guard.
type UserAdminHandler struct {
	userService *services.UserService
}

func NewUserAdminHandler(userService *services.UserService) *UserAdminHandler {
	return &UserAdminHandler{userService: userService}
}

// UserAdminRouter registers admin user-management routes.
func UserAdminRouter(r chi.Router, handler *UserAdminHandler) {
	r.Get("/", handler.List)
	r.Patch("/{id}", handler.Update)
	r.Delete("/{id}", handler.Delete)
}

type UserListResponse struct {
	Users []types.User `json:"users"`
	Total int          `json:"total"`
}

// List returns every registered user.
func (h *UserAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users, Total: len(users)})
}

// Update changes another user's name and/or phone.
func (h *UserAdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
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

	updated, err := h.userService.UpdateProfile(r.Context(), id, req.Name, req.Phone)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a user. Admins cannot delete their own account.
func (h *UserAdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	claims := claimsFromContext(r.Context())
	if claims != nil && claims.Subject == id.String() {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user deleted"})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return uuid.UUID{}, false
	}
	return id, true
}
