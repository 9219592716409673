package models

import "time"

// User represents a user account.
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	IsVerified        bool      `json:"is_verified"`
	VerificationToken *string   `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// PendingVerification reports whether the user still holds an unredeemed token.
func (u *User) PendingVerification() bool {
	return !u.IsVerified && u.VerificationToken != nil
}

// Session represents a server-held login session.
type Session struct {
	Token        string    `json:"token"`
	UserID       int64     `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}
