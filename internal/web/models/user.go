package models

import (
	"slices"
	"time"
)

// Login providers.
const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

// User is an operator of the console.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Groups       []string  `json:"groups"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasGroup reports whether the user belongs to group. An empty group
// matches everyone.
func (u *User) HasGroup(group string) bool {
	if group == "" {
		return true
	}
	return u != nil && slices.Contains(u.Groups, group)
}

// Session is a signed-in browser. Tokens are set for OIDC logins only.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time

	User *User
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
