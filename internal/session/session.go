// Package session binds authenticated users to browser sessions.
//
// Session state lives in the database. The cookie carries an HS256 token whose
// "sid" claim names the stored session, so a forged or altered cookie is
// rejected before any lookup.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultDuration is how long sessions last (30 days).
const DefaultDuration = 30 * 24 * time.Hour

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Session is a resolved login.
type Session struct {
	ID        string
	User      *models.User
	ExpiresAt time.Time
	// Renewed holds a fresh cookie value when Resolve extended the session.
	Renewed string
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager creates, resolves and destroys sessions.
type Manager struct {
	store               Store
	secret              []byte
	duration            time.Duration
	requireVerification bool
	now                 func() time.Time
}

// NewManager returns a Manager signing cookies with secret. A zero duration
// selects DefaultDuration.
func NewManager(store Store, secret []byte, duration time.Duration, requireVerification bool) *Manager {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Manager{
		store:               store,
		secret:              secret,
		duration:            duration,
		requireVerification: requireVerification,
		now:                 time.Now,
	}
}

// Duration returns the session lifetime.
func (m *Manager) Duration() time.Duration {
	return m.duration
}

// Create starts a session for user and returns the cookie value.
func (m *Manager) Create(ctx context.Context, user *models.User) (string, time.Time, error) {
	if m.requireVerification && !user.IsVerified {
		return "", time.Time{}, models.ErrUnverified
	}
	id, err := auth.GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := m.now().Add(m.duration)
	if err := m.store.CreateSession(ctx, id, user.ID, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	value, err := m.sign(id, user.ID, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return value, expiresAt, nil
}

// Resolve returns the session behind cookie value, or models.ErrUnauthenticated.
// Sessions past half their lifetime are extended and carry a new cookie value
// in Session.Renewed, which the caller must send back to the client.
func (m *Manager) Resolve(ctx context.Context, value string) (*Session, error) {
	s, err := m.lookup(ctx, value)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if s.ExpiresAt.Sub(now) < m.duration/2 {
		newExpiresAt := now.Add(m.duration)
		// A failed renewal keeps the current session.
		if err := m.store.RenewSession(ctx, s.ID, newExpiresAt); err == nil {
			if renewed, err := m.sign(s.ID, s.User.ID, newExpiresAt); err == nil {
				s.ExpiresAt = newExpiresAt
				s.Renewed = renewed
			}
		}
	}
	return s, nil
}

// Peek is Resolve without renewal. The stored expiry never moves, so callers
// that cannot set a cookie stay in step with the client's token.
func (m *Manager) Peek(ctx context.Context, value string) (*Session, error) {
	return m.lookup(ctx, value)
}

func (m *Manager) lookup(ctx context.Context, value string) (*Session, error) {
	id, err := m.parse(value)
	if err != nil {
		return nil, models.ErrUnauthenticated
	}

	info, err := m.store.ValidateSessionWithInfo(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	if m.requireVerification && !info.User.IsVerified {
		return nil, models.ErrUnauthenticated
	}
	return &Session{ID: id, User: info.User, ExpiresAt: info.ExpiresAt}, nil
}

// Destroy removes the session behind value. It is idempotent and ignores
// malformed values.
func (m *Manager) Destroy(ctx context.Context, value string) error {
	id, err := m.parse(value)
	if err != nil {
		return nil
	}
	return m.store.DeleteSession(ctx, id)
}

// Sweep deletes expired sessions.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.store.CleanExpiredSessions(ctx, m.now())
}

func (m *Manager) sign(id string, userID int64, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(value string) (string, error) {
	if value == "" {
		return "", models.ErrUnauthenticated
	}
	var c claims
	_, err := jwt.ParseWithClaims(value, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if c.SessionID == "" {
		return "", models.ErrUnauthenticated
	}
	return c.SessionID, nil
}
