package models

// Role is the caller's role as derived from the access token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleExpert Role = "expert"
	RoleClient Role = "client"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsStaff reports whether the actor works files on behalf of the shop.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleExpert
}

// RoleFromClaims picks the most privileged known role from token roles.
func RoleFromClaims(roles []string) Role {
	best := RoleClient
	for _, r := range roles {
		switch Role(r) {
		case RoleAdmin:
			return RoleAdmin
		case RoleExpert:
			best = RoleExpert
		}
	}
	return best
}
