package model

import "strings"

// DefaultRole is assigned to identities without a recorded role.
const DefaultRole = "user"

// Settings is an opaque per-user preferences blob.
type Settings map[string]any

// User is an application user's identity and authorization metadata.
type User struct {
	Settings Settings `json:"settings,omitempty"`
	Username string   `json:"username" validate:"required"`
	UID      string   `json:"uid"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Role     string   `json:"role"`
}

// UsernameFromEmail derives a username from the local part of an email address.
func UsernameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
