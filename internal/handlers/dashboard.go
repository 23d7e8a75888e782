package handlers

import (
	"net/http"
)

// DashboardResponse is the minimal payload behind the role-scoped home
// routes; the interesting part is getting past the guard at all.
type DashboardResponse struct {
	Area  string `json:"area"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ClientDashboard serves the client-only home resource.
func ClientDashboard(w http.ResponseWriter, r *http.Request) {
	serveDashboard(w, r, "client")
}

// AdminDashboard serves the admin-only home resource.
func AdminDashboard(w http.ResponseWriter, r *http.Request) {
	serveDashboard(w, r, "admin")
}

func serveDashboard(w http.ResponseWriter, r *http.Request, area string) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		// Guarded routes always carry claims.
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{
		Area:  area,
		Email: claims.Email,
		Role:  claims.Role,
	})
}
