package storage

import (
	"context"
	"fmt"
	"time"

	"expense-tracker/internal/models"
)

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	Token        string
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := db.exec(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, toMillis(expiresAt), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (db *DB) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo returns the unexpired session stored under token.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.queryRow(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.is_verified, u.verification_token, u.created_at,
		       s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, toMillis(time.Now()))

	var (
		info                SessionInfo
		lastActivity, expAt int64
	)
	user, err := scanUser(scanFunc(func(dest ...any) error {
		return row.Scan(append(dest, &lastActivity, &expAt)...)
	}))
	if err != nil {
		return nil, notFound(err)
	}
	info.User = user
	info.Token = token
	info.LastActivity = fromMillis(lastActivity)
	info.ExpiresAt = fromMillis(expAt)
	return &info, nil
}

// scanFunc adapts a function to rowScanner so extra columns can follow a user.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.exec(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		toMillis(time.Now()), toMillis(newExpiresAt), token,
	)
	return err
}

// DeleteSession removes a session by token. Deleting an unknown token is not an error.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.exec(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all sessions that expired before now and
// reports how many were deleted.
func (db *DB) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, "DELETE FROM sessions WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
