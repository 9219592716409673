package handlers

import (
	"errors"
	"net/http"
	"strings"

	"expense-tracker/internal/models"

	"github.com/go-chi/chi/v5"
)

// AccountFormView holds data for the signup, login and resend pages.
type AccountFormView struct {
	Username string
	Email    string
	Error    string
	// Unverified offers the resend link after a gated login.
	Unverified bool
}

// VerifyView is the result page for a verification link.
type VerifyView struct {
	OK      bool
	Message string
}

// Index sends visitors to their dashboard or the login page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// SignupForm renders the signup page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", AccountFormView{})
}

// Signup creates an unverified account and mails its verification link.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	view := AccountFormView{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}

	_, err := h.accounts.Register(r.Context(), view.Username, view.Email, r.PostFormValue("password"))
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		view.Error = ve.Message
		h.render(w, r, http.StatusUnprocessableEntity, "signup.html", view)
		return
	case errors.Is(err, models.ErrDuplicate):
		view.Error = "Username or Email already exists!"
		h.render(w, r, http.StatusConflict, "signup.html", view)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	if h.accounts.RequiresVerification() {
		h.redirectWithFlash(w, r, "/login", "success", "Signup successful. Check your email for a verification link before logging in.")
		return
	}
	h.redirectWithFlash(w, r, "/login", "success", "Signup successful. Please login.")
}

// VerifyEmail redeems a verification token.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	_, err := h.accounts.RedeemVerificationToken(r.Context(), chi.URLParam(r, "token"))
	switch {
	case errors.Is(err, models.ErrInvalidToken):
		h.render(w, r, http.StatusBadRequest, "verify.html", VerifyView{
			Message: "This verification link is invalid or has already been used.",
		})
	case err != nil:
		h.serverError(w, r, err)
	default:
		h.redirectWithFlash(w, r, "/login", "success", "Email verified. You can now log in.")
	}
}

// ResendForm renders the resend-verification page.
func (h *Handlers) ResendForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "resend.html", AccountFormView{})
}

// ResendVerification issues a new verification link. Unknown and already
// verified addresses get the same answer as a successful resend.
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	view := AccountFormView{Email: strings.TrimSpace(r.PostFormValue("email"))}

	err := h.accounts.ResendVerification(r.Context(), view.Email)
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		view.Error = ve.Message
		h.render(w, r, http.StatusUnprocessableEntity, "resend.html", view)
		return
	case err == nil, errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrAlreadyVerified):
		h.redirectWithFlash(w, r, "/login", "info",
			"If an unverified account uses that address, a new verification link is on its way.")
	default:
		h.serverError(w, r, err)
	}
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", AccountFormView{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	view := AccountFormView{Username: strings.TrimSpace(r.PostFormValue("username"))}
	password := r.PostFormValue("password")

	if view.Username == "" || password == "" {
		view.Error = "Username and password are required"
		h.render(w, r, http.StatusUnprocessableEntity, "login.html", view)
		return
	}

	user, err := h.accounts.Login(r.Context(), view.Username, password)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		view.Error = "Invalid Credentials!"
		h.render(w, r, http.StatusUnauthorized, "login.html", view)
		return
	case errors.Is(err, models.ErrUnverified):
		view.Error = "Please verify your email before logging in."
		view.Unverified = true
		h.render(w, r, http.StatusForbidden, "login.html", view)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	value, expiresAt, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.setSessionCookie(w, value, expiresAt)
	h.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	h.redirectWithFlash(w, r, "/dashboard", "success", "Logged in successfully.")
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.ErrorContext(r.Context(), "delete session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	h.redirectWithFlash(w, r, "/login", "info", "You have been logged out.")
}
