package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"expense-tracker/internal/accounts"
	"expense-tracker/internal/config"
	"expense-tracker/internal/handlers"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/mail"
	"expense-tracker/internal/middleware"
	"expense-tracker/internal/session"
	"expense-tracker/internal/storage"
	"expense-tracker/web"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is the wired service graph.
type app struct {
	accounts *accounts.Service
	sessions *session.Manager
	ledger   *ledger.Service
	handlers *handlers.Handlers
}

func newApp(cfg *config.Config, db *storage.DB, logger *slog.Logger) (*app, error) {
	var sender mail.Sender = mail.LogSender{Logger: logger}
	if cfg.BrevoAPIKey != "" {
		sender = mail.NewBrevoClient(cfg.MailAPIURL, cfg.BrevoAPIKey,
			mail.Address{Name: cfg.MailSenderName, Email: cfg.MailSenderEmail}, logger)
	}
	notifier := mail.NewNotifier(sender, cfg.BaseURL, cfg.MailSenderName)

	a := &app{
		accounts: accounts.NewService(db, notifier, accounts.Options{
			RequireVerification: cfg.RequireVerification,
			LoginAlerts:         cfg.LoginAlerts,
			Logger:              logger,
		}),
		sessions: session.NewManager(db, []byte(cfg.SecretKey), cfg.SessionLength, cfg.RequireVerification),
		ledger: ledger.NewService(db, ledger.Options{
			AllowNonPositive: cfg.AllowNonPositiveAmounts,
			Logger:           logger,
		}),
	}

	h, err := handlers.NewHandlers(handlers.Deps{
		Accounts:     a.accounts,
		Sessions:     a.sessions,
		Ledger:       a.ledger,
		Templates:    web.Templates(),
		SecureCookie: cfg.SecureCookie,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	a.handlers = h
	return a, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", "dialect", string(db.Dialect()))

	a, err := newApp(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, cfg, db, a.accounts, logger); err != nil {
		return err
	}
	if n, err := a.sessions.Sweep(ctx); err != nil {
		logger.Warn("session sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("expired sessions removed", "count", n)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(a.handlers, db, cfg.SecureCookie),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "base_url", cfg.BaseURL,
			"require_verification", cfg.RequireVerification)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	a.accounts.Wait()
	return err
}

// userCounter is the part of the store bootstrapAdmin needs.
type userCounter interface {
	UserCount(ctx context.Context) (int, error)
}

// bootstrapAdmin creates the ADMIN_USER account on an empty database so a
// fresh install can be used without mail delivery.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, db userCounter, svc *accounts.Service, logger *slog.Logger) error {
	if cfg.AdminUser == "" {
		return nil
	}
	n, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	user, err := svc.CreateVerifiedUser(ctx, cfg.AdminUser, cfg.AdminEmailOrDefault(), cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.Info("admin user created", "user_id", user.ID, "username", user.Username)
	return nil
}

// pinger reports database liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

func setupRouter(h *handlers.Handlers, db pinger, hsts bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog(slog.Default()))
	r.Use(middleware.Prometheus)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(hsts))
	r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	r.Get("/healthz", healthz(db))
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r, middleware.AuthRateLimiter().Middleware)
	return r
}

func healthz(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
