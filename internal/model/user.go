// Package model defines the data structures used throughout the application.
package model

import "time"

// Roles a user may hold. Only RoleStudent is assigned at registration.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// User is a registered account.
//
// A user signs in either with email + password or through GitHub OAuth, and
// may have both. GitHubID is 0 for accounts that have never linked GitHub;
// it is stored as NULL so the UNIQUE constraint only applies to real IDs.
//
// PasswordHash is never serialised. Accounts created through GitHub have an
// empty hash and cannot log in with a password.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"githubId,omitempty"`
	Login        string    `json:"login,omitempty"` // GitHub username
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
