// Package authz decides whether a presented session may reach a
// role-scoped resource. The decision function is pure: it reads the
// session claims and the target class and produces allow or a redirect.
package authz

import (
	"github.com/securelogin/apiserver/internal/session"
	"github.com/securelogin/apiserver/types"
)

// ResourceClass partitions routes by the role they require.
type ResourceClass int

const (
	// Public resources require no session.
	Public ResourceClass = iota

	// ClientArea resources require a CLIENT session.
	ClientArea

	// AdminArea resources require an ADMIN session.
	AdminArea
)

// Redirect targets.
const (
	LoginPath      = "/auth/login"
	ClientHomePath = "/dashboard/client"
	AdminHomePath  = "/dashboard/admin"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allow      bool
	RedirectTo string
}

var allow = Decision{Allow: true}

func redirect(target string) Decision {
	return Decision{RedirectTo: target}
}

// Authorize maps (session, resource class) to a decision. claims is nil
// when no session was presented, or when the presented one was expired or
// unparseable; all three are treated identically. An authenticated user
// asking for the other role's area is sent to their own home, not to login.
func Authorize(claims *session.Claims, class ResourceClass) Decision {
	if class == Public {
		return allow
	}
	if claims == nil {
		return redirect(LoginPath)
	}

	switch claims.Role {
	case types.RoleAdmin:
		if class == AdminArea {
			return allow
		}
		return redirect(AdminHomePath)
	case types.RoleClient:
		if class == ClientArea {
			return allow
		}
		return redirect(ClientHomePath)
	default:
		// Unknown role in a signed token should not happen; treat the
		// session as absent rather than guessing a home.
		return redirect(LoginPath)
	}
}
