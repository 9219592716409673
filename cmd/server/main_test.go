package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expense-tracker/internal/config"
	"expense-tracker/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                    "8080",
		BaseURL:                 "http://localhost:8080",
		DatabaseURL:             ":memory:",
		SecretKey:               "router-test-secret-key",
		SessionLength:           time.Hour,
		RequireVerification:     true,
		AllowNonPositiveAmounts: true,
		LogFormat:               "text",
		LogLevel:                "info",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestSetupRouter(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create database")
	defer db.Close()

	a, err := newApp(testConfig(), db, quietLogger())
	require.NoError(t, err)
	mux := setupRouter(a.handlers, db, false)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "Root redirects to login", method: "GET", path: "/", wantStatus: http.StatusFound},
		{name: "Static file access", method: "GET", path: "/static/style.css", wantStatus: http.StatusOK},
		{name: "Login page", method: "GET", path: "/login", wantStatus: http.StatusOK, wantBody: "Log in"},
		{name: "Signup page", method: "GET", path: "/signup", wantStatus: http.StatusOK, wantBody: "Create an account"},
		{name: "List Expenses requires auth", method: "GET", path: "/expenses", wantStatus: http.StatusFound},
		{name: "Dashboard requires auth", method: "GET", path: "/dashboard", wantStatus: http.StatusFound},
		{name: "Health check", method: "GET", path: "/healthz", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "Unknown route", method: "GET", path: "/nope", wantStatus: http.StatusNotFound},
		{name: "Metrics", method: "GET", path: "/metrics", wantStatus: http.StatusOK, wantBody: "http_requests_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, "%s %s returned unexpected status", tt.method, tt.path)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestHealthzReportsDatabaseDown(t *testing.T) {
	w := httptest.NewRecorder()
	healthz(downDB{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBootstrapAdmin(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	cfg.AdminUser = "testuser"
	cfg.AdminPassword = "testpass123"
	a, err := newApp(cfg, db, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, bootstrapAdmin(ctx, cfg, db, a.accounts, quietLogger()))
	user, err := db.GetUserByUsername(ctx, "testuser")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Equal(t, "testuser@localhost.localdomain", user.Email)

	// A non-empty database is left alone.
	require.NoError(t, bootstrapAdmin(ctx, cfg, db, a.accounts, quietLogger()))
	n, err := db.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = a.accounts.Login(ctx, "testuser", "testpass123")
	assert.NoError(t, err, "admin can log in without verification")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
