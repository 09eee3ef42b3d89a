package auth

import (
	"errors"
	"fmt"
	"regexp"
)

// subjectPattern defines the valid format for token subjects:
// alphanumeric, dots, hyphens, underscores, @, 1-64 characters.
var subjectPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,64}$`)

// IsValidSubject checks if a subject meets format requirements.
func IsValidSubject(subject string) bool {
	return subjectPattern.MatchString(subject)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleCollaborator monitors devices and connects new ones.
	RoleCollaborator Role = "colaborador"

	// RoleAdmin can additionally delete devices and change the broker
	// configuration.
	RoleAdmin Role = "administrador"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleCollaborator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !IsValidRole(r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// Can reports whether the identity holds perm.
func (i Identity) Can(perm Permission) bool {
	return HasPermission(i.Role, perm)
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrMissingSecret  = errors.New("signing secret is empty")
	ErrForbidden      = errors.New("insufficient permissions")
)
