// Package permission maps roles to capabilities.  It is stateless: a Policy
// is derived data that is never persisted and always evaluated against the
// identity currently held by the session.
package permission

import "github.com/iliyamo/league-client/internal/model"

const (
	// RoleAdmin is the league administrator role.
	RoleAdmin = "admin"
	// RoleUser is the default role for signed-in players and spectators.
	RoleUser = "user"

	// CapAdmin gates tournament administration screens.
	CapAdmin = "admin"
)

// Policy is a pure mapping from role name to the capability tokens it grants.
type Policy map[string][]string

// Default grants the single "admin" capability to the "admin" role.
func Default() Policy {
	return Policy{RoleAdmin: {CapAdmin}}
}

// Grants reports whether role carries capability.
func (p Policy) Grants(role, capability string) bool {
	if capability == "" {
		return false
	}
	for _, c := range p[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Capabilities returns a copy of the capability set for role.
func (p Policy) Capabilities(role string) []string {
	caps := p[role]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// HasRole reports whether identity holds role.  A nil identity holds nothing.
func HasRole(identity *model.Identity, role string) bool {
	if identity == nil || role == "" {
		return false
	}
	return identity.Role == role
}

// HasPermission reports whether identity's role is granted capability.
func (p Policy) HasPermission(identity *model.Identity, capability string) bool {
	if identity == nil {
		return false
	}
	return p.Grants(identity.Role, capability)
}
