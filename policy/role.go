// Package policy is the authorization engine of the department site.
//
// A Gate holds one Policy per resource Kind. Every decision runs the same
// fixed procedure: admins are allowed unless a named carve-out applies,
// actors below the action's minimum role are denied, then the policy's
// ownership or membership predicate decides, and anything left is denied.
//
// The package knows nothing about the database; callers describe the
// resource with one of the subject types declared here.
package policy

import "strings"

// Role is a user's position in the admin > teacher > user hierarchy.
type Role string

const (
	RoleGuest   Role = ""
	RoleUser    Role = "user"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Rank is the numeric level of r. Unknown roles rank 0, same as a guest.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleTeacher:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the three assignable roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// String returns "guest" for the empty role.
func (r Role) String() string {
	if r == RoleGuest {
		return "guest"
	}
	return string(r)
}

// ParseRole normalizes s and reports whether it names an assignable role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Roles lists the assignable roles from lowest to highest.
func Roles() []Role {
	return []Role{RoleUser, RoleTeacher, RoleAdmin}
}

// HasRoleOrHigher reports whether the actor's level is at least the level of required.
func HasRoleOrHigher(a Actor, required Role) bool {
	return a.Role.Rank() >= required.Rank()
}
