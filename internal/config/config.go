// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// minSecretLen is the shortest accepted session signing key.
const minSecretLen = 16

type Config struct {
	// HTTP Server
	Port    string
	BaseURL string

	// Database. postgres:// URLs select PostgreSQL, anything else is a SQLite path.
	DatabaseURL string

	// SecretKey signs session cookies. It has no default and must come from the environment.
	SecretKey     string
	SecureCookie  bool
	SessionLength time.Duration

	// Mail (Brevo). Without an API key, mail is only logged.
	BrevoAPIKey     string
	MailAPIURL      string
	MailSenderEmail string
	MailSenderName  string
	LoginAlerts     bool

	// Product rules
	RequireVerification     bool
	AllowNonPositiveAmounts bool

	// Logging
	LogFormat string
	LogLevel  string

	// Optional first-run account
	AdminUser     string
	AdminEmail    string
	AdminPassword string
}

// Load reads .env (if present) and then the environment.
func Load() *Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		dbURL = getEnv("DB_PATH", "expenses.db")
	}

	return &Config{
		Port:    port,
		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),

		DatabaseURL: dbURL,

		SecretKey:     os.Getenv("SECRET_KEY"),
		SecureCookie:  getEnvBool("SECURE_COOKIE", false),
		SessionLength: getEnvDuration("SESSION_DURATION", 30*24*time.Hour),

		BrevoAPIKey:     os.Getenv("BREVO_API_KEY"),
		MailAPIURL:      getEnv("MAIL_API_URL", ""),
		MailSenderEmail: getEnv("MAIL_SENDER_EMAIL", ""),
		MailSenderName:  getEnv("MAIL_SENDER_NAME", "Expense Tracker"),
		LoginAlerts:     getEnvBool("LOGIN_ALERTS", true),

		RequireVerification:     getEnvBool("REQUIRE_VERIFICATION", true),
		AllowNonPositiveAmounts: getEnvBool("ALLOW_NON_POSITIVE_AMOUNTS", true),

		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var result *multierror.Error

	if port, err := strconv.Atoi(c.Port); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("SECRET_KEY must be set"))
	} else if len(c.SecretKey) < minSecretLen {
		result = multierror.Append(result, fmt.Errorf("SECRET_KEY must be at least %d bytes", minSecretLen))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("invalid BASE_URL '%s': must be an absolute http(s) URL", c.BaseURL))
	}

	if c.DatabaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("DATABASE_URL cannot be empty"))
	}

	if c.SessionLength < time.Minute {
		result = multierror.Append(result, fmt.Errorf("invalid session duration %v: must be at least 1 minute", c.SessionLength))
	}

	if c.BrevoAPIKey != "" {
		if _, err := mail.ParseAddress(c.MailSenderEmail); err != nil {
			result = multierror.Append(result, fmt.Errorf("MAIL_SENDER_EMAIL must be a valid address when BREVO_API_KEY is set"))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if _, err := c.SlogLevel(); err != nil {
		result = multierror.Append(result, err)
	}

	if (c.AdminUser != "") != (c.AdminPassword != "") {
		result = multierror.Append(result, fmt.Errorf("ADMIN_USER and ADMIN_PASSWORD must be set together"))
	}

	return result.ErrorOrNil()
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'", c.LogLevel)
	}
	return level, nil
}

// AdminEmailOrDefault returns the bootstrap account's email address.
func (c *Config) AdminEmailOrDefault() string {
	if c.AdminEmail != "" {
		return c.AdminEmail
	}
	return c.AdminUser + "@localhost.localdomain"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
