package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when a username or email is already taken.
	ErrDuplicate = errors.New("username or email already exists")
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnverified is returned when an account has not confirmed its email yet.
	ErrUnverified = errors.New("email address not verified")
	// ErrInvalidToken is returned for unknown, used or stale verification tokens.
	ErrInvalidToken = errors.New("invalid or expired verification token")
	// ErrAlreadyVerified is returned when a verification action targets a verified account.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a user touches a record they do not own.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when a request carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrEmailDelivery marks a failed outbound email. It is logged, never fatal.
	ErrEmailDelivery = errors.New("email delivery failed")
)

// ValidationError reports malformed user input for a single form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
