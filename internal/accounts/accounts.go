// Package accounts implements sign-up, login and the email verification workflow.
//
// A user starts Unverified with a pending token, and redeeming that token moves
// them to Verified, which is terminal. Resending replaces the pending token.
// When verification is required, Login refuses unverified users.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/metrics"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"
)

const (
	maxUsernameLen = 150
	maxEmailLen    = 150

	// mailTimeout caps a single notification, whatever the caller's deadline.
	mailTimeout = 5 * time.Second
)

// UserStore is the credential store used by Service.
type UserStore interface {
	CreateUser(ctx context.Context, nu storage.NewUser) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	SetVerificationToken(ctx context.Context, userID int64, token string) error
	RedeemVerificationToken(ctx context.Context, token string) (*models.User, error)
}

// Mailer sends account notifications. Failures are logged by Service and never
// undo the state change that triggered them.
type Mailer interface {
	SendVerification(ctx context.Context, email, username, token string) error
	SendLoginAlert(ctx context.Context, email, username string, at time.Time) error
}

// Options tunes Service behaviour.
type Options struct {
	// RequireVerification blocks Login for users that have not redeemed their token.
	RequireVerification bool
	// LoginAlerts sends an email after every successful login.
	LoginAlerts bool
	Logger      *slog.Logger
}

// Service coordinates the credential store and the mailer.
type Service struct {
	store  UserStore
	mailer Mailer
	opts   Options
	logger *slog.Logger

	// wg tracks login alerts still in flight.
	wg sync.WaitGroup
}

// NewService returns a Service.
func NewService(store UserStore, mailer Mailer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, mailer: mailer, opts: opts, logger: logger.With("component", "accounts")}
}

// Wait blocks until every background notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RequiresVerification reports whether unverified users are refused at login.
func (s *Service) RequiresVerification() bool {
	return s.opts.RequireVerification
}

// Register creates an unverified account and mails its verification link.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username, email, err := normalizeSignup(username, email, password)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		metrics.AccountEvent("signup", "duplicate")
		return nil, models.ErrDuplicate
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := auth.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	user, err := s.store.CreateUser(ctx, storage.NewUser{
		Username:          username,
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: &token,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			metrics.AccountEvent("signup", "duplicate")
		}
		return nil, err
	}

	metrics.AccountEvent("signup", "ok")
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	s.sendVerification(ctx, user, token)
	return user, nil
}

// CreateVerifiedUser creates an account that skips email verification.
// It backs the admin CLI and first-run bootstrap.
func (s *Service) CreateVerifiedUser(ctx context.Context, username, email, password string) (*models.User, error) {
	username, email, err := normalizeSignup(username, email, password)
	if err != nil {
		return nil, err
	}
	exists, err := s.store.UserExists(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrDuplicate
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(ctx, storage.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	})
}

// Authenticate checks credentials without looking at verification state.
// Unknown users and wrong passwords both yield models.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			auth.BurnPasswordCheck(password)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and applies the verification gate. An unverified user
// is returned together with models.ErrUnverified so callers can offer a resend.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			metrics.AccountEvent("login", "invalid")
		}
		return nil, err
	}
	if s.opts.RequireVerification && !user.IsVerified {
		metrics.AccountEvent("login", "unverified")
		return user, models.ErrUnverified
	}

	metrics.AccountEvent("login", "ok")
	if s.opts.LoginAlerts {
		s.sendLoginAlert(ctx, user)
	}
	return user, nil
}

// IssueVerificationToken stores a fresh token on user, replacing any pending one.
func (s *Service) IssueVerificationToken(ctx context.Context, user *models.User) (string, error) {
	if user.IsVerified {
		return "", models.ErrAlreadyVerified
	}
	token, err := auth.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	if err := s.store.SetVerificationToken(ctx, user.ID, token); err != nil {
		return "", err
	}
	user.VerificationToken = &token
	return token, nil
}

// RedeemVerificationToken verifies the account holding token. Tokens are single use.
func (s *Service) RedeemVerificationToken(ctx context.Context, token string) (*models.User, error) {
	user, err := s.store.RedeemVerificationToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			metrics.AccountEvent("verify", "invalid")
		}
		return nil, err
	}
	metrics.AccountEvent("verify", "ok")
	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification issues a new token for the unverified account registered
// under email and mails it. It returns models.ErrNotFound for unknown addresses
// and models.ErrAlreadyVerified for verified accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.NewValidationError("email", "Email is required.")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.AccountEvent("resend", "unknown")
		}
		return err
	}
	token, err := s.IssueVerificationToken(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyVerified) {
			metrics.AccountEvent("resend", "verified")
		}
		return err
	}
	metrics.AccountEvent("resend", "ok")
	s.sendVerification(ctx, user, token)
	return nil
}

// sendLoginAlert mails the alert in the background so a slow provider never
// holds up the login response.
func (s *Service) sendLoginAlert(ctx context.Context, user *models.User) {
	ctx = context.WithoutCancel(ctx)
	at := time.Now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()
		err := s.mailer.SendLoginAlert(ctx, user.Email, user.Username, at)
		metrics.Email("login_alert", err)
		if err != nil {
			s.logger.WarnContext(ctx, "login alert not delivered", "user_id", user.ID, "error", err)
		}
	}()
}

// sendVerification runs inline so the token is on its way before the user is
// told to check their inbox. The send survives a dropped request but is
// bounded by mailTimeout.
func (s *Service) sendVerification(ctx context.Context, user *models.User, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	defer cancel()
	err := s.mailer.SendVerification(ctx, user.Email, user.Username, token)
	metrics.Email("verification", err)
	if err != nil {
		s.logger.WarnContext(ctx, "verification email not delivered", "user_id", user.ID, "error", err)
	}
}

func normalizeSignup(username, email, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	switch {
	case username == "":
		return "", "", models.NewValidationError("username", "Username is required.")
	case len(username) > maxUsernameLen:
		return "", "", models.NewValidationError("username", "Username is too long.")
	case email == "":
		return "", "", models.NewValidationError("email", "Email is required.")
	case len(email) > maxEmailLen:
		return "", "", models.NewValidationError("email", "Email is too long.")
	case password == "":
		return "", "", models.NewValidationError("password", "Password is required.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", models.NewValidationError("email", "Please enter a valid email address.")
	}
	return username, email, nil
}
