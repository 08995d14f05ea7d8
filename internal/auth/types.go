package auth

import "errors"

// Role is an authorisation tier carried in the access token.
type Role string

const (
	// RoleViewer may read projector state and history.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally send projector commands.
	RoleOperator Role = "operator"

	// RoleAdmin may additionally change daemon settings such as the log level.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
