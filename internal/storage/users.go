package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"expense-tracker/internal/models"
)

const userColumns = "id, username, email, password_hash, is_verified, verification_token, created_at"

// NewUser holds the fields needed to insert a user.
type NewUser struct {
	Username          string
	Email             string
	PasswordHash      string
	IsVerified        bool
	VerificationToken *string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		token     sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsVerified, &token, &createdAt); err != nil {
		return nil, err
	}
	if token.Valid {
		u.VerificationToken = &token.String
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// CreateUser inserts a user. A taken username or email yields models.ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, nu NewUser) (*models.User, error) {
	row := db.queryRow(ctx,
		"INSERT INTO users (username, email, password_hash, is_verified, verification_token, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING "+userColumns,
		nu.Username, nu.Email, nu.PasswordHash, nu.IsVerified, nu.VerificationToken, toMillis(time.Now()),
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	return u, notFound(err)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	return u, notFound(err)
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
	return u, notFound(err)
}

// UserExists reports whether any user holds username or email.
func (db *DB) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := db.queryRow(ctx,
		"SELECT COUNT(*) FROM users WHERE username = ? OR email = ?",
		username, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// SetVerificationToken replaces the pending token of an unverified user.
// It returns models.ErrAlreadyVerified for verified accounts and
// models.ErrNotFound when the user does not exist.
func (db *DB) SetVerificationToken(ctx context.Context, userID int64, token string) error {
	res, err := db.exec(ctx,
		"UPDATE users SET verification_token = ? WHERE id = ? AND is_verified = ?",
		token, userID, false,
	)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := db.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return models.ErrAlreadyVerified
}

// RedeemVerificationToken marks the holder of token verified and clears the
// token in one statement. Unknown or already used tokens yield models.ErrInvalidToken.
func (db *DB) RedeemVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, models.ErrInvalidToken
	}
	row := db.queryRow(ctx,
		"UPDATE users SET is_verified = ?, verification_token = NULL WHERE verification_token = ? AND is_verified = ? RETURNING "+userColumns,
		true, token, false,
	)
	u, err := scanUser(row)
	if err != nil {
		if notFound(err) == models.ErrNotFound {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("redeem verification token: %w", err)
	}
	return u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.queryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}
