package models

// Role is the authorization level of an authenticated caller
type Role string

// Role constants
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller as reported by the upstream authenticator
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsElevated reports whether the principal may act on other users' records
func (p Principal) IsElevated() bool {
	return p.Role == RoleAdmin
}
