package model

import "time"

// Session is the currently authenticated identity and its role.
type Session struct {
	UID      string
	Email    string
	Username string
	Role     string
}

// Credential is what the identity provider returns for a signed-in user.
// It is persisted locally so a later run can restore the session.
type Credential struct {
	ExpiresAt    time.Time
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
}

// Expired reports whether the ID token is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
