package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"expense-tracker/internal/accounts"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// views lists the page templates. Each is parsed together with base.html.
var views = []string{
	"signup.html",
	"login.html",
	"resend.html",
	"verify.html",
	"dashboard.html",
	"expenses.html",
	"expense_form.html",
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Accounts *accounts.Service
	Sessions *session.Manager
	Ledger   *ledger.Service
	// Templates holds base.html and the page templates at its root.
	Templates    fs.FS
	SecureCookie bool
	Logger       *slog.Logger
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	accounts     *accounts.Service
	sessions     *session.Manager
	ledger       *ledger.Service
	views        map[string]*template.Template
	secureCookie bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewHandlers parses the templates and returns a Handlers instance.
func NewHandlers(d Deps) (*Handlers, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		accounts:     d.Accounts,
		sessions:     d.Sessions,
		ledger:       d.Ledger,
		views:        make(map[string]*template.Template, len(views)),
		secureCookie: d.SecureCookie,
		logger:       logger.With("component", "http"),
		now:          time.Now,
	}
	for _, name := range views {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(d.Templates, "base.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		h.views[name] = tmpl
	}
	return h, nil
}

// Register mounts the application routes on r. authLimit wraps the POST
// endpoints that take credentials or email addresses.
func (h *Handlers) Register(r chi.Router, authLimit func(http.Handler) http.Handler) {
	r.Get("/", h.Index)

	r.Group(func(r chi.Router) {
		if authLimit != nil {
			r.Use(authLimit)
		}
		r.Get("/signup", h.SignupForm)
		r.Post("/signup", h.Signup)
		r.Get("/login", h.LoginForm)
		r.Post("/login", h.Login)
		r.Get("/resend-verification", h.ResendForm)
		r.Post("/resend-verification", h.ResendVerification)
	})
	r.Get("/verify-email/{token}", h.VerifyEmail)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/logout", h.Logout)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/expenses", h.ListExpenses)
		r.Get("/add-expense", h.AddExpenseForm)
		r.Post("/add-expense", h.AddExpense)
		r.Get("/edit-expense/{id}", h.EditExpenseForm)
		r.Post("/edit-expense/{id}", h.EditExpense)
		r.Post("/delete-expense/{id}", h.DeleteExpense)
	})
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication. Sessions that the
// manager renewed get a fresh cookie.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		s, err := h.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, models.ErrUnauthenticated) {
				h.logger.ErrorContext(r.Context(), "resolve session", "error", err)
			}
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if s.Renewed != "" {
			h.setSessionCookie(w, s.Renewed, s.ExpiresAt)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, s.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser resolves the session cookie on public pages without
// redirecting. It peeks so the stored expiry only moves when a renewed
// cookie is sent by AuthMiddleware.
func (h *Handlers) currentUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	s, err := h.sessions.Peek(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return s.User
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// page is the data every template receives.
type page struct {
	User  *models.User
	Flash *Flash
	Data  any
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, view string, data any) {
	tmpl, ok := h.views[view]
	if !ok {
		h.serverError(w, r, fmt.Errorf("unknown view %q", view))
		return
	}
	user := GetUserFromContext(r)
	if user == nil {
		user = h.currentUser(r)
	}
	p := page{User: user, Flash: h.popFlash(w, r), Data: data}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		h.serverError(w, r, fmt.Errorf("execute template %s: %w", view, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pct":   func(f float64) string { return fmt.Sprintf("%.1f", f) },
}
