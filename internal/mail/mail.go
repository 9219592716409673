// Package mail sends transactional email through the Brevo REST API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"expense-tracker/internal/models"
)

// DefaultAPIURL is Brevo's transactional email endpoint.
const DefaultAPIURL = "https://api.brevo.com/v3/smtp/email"

// Message is a plain text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Address names a mailbox.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      Address   `json:"sender"`
	To          []Address `json:"to"`
	Subject     string    `json:"subject"`
	TextContent string    `json:"textContent"`
}

// BrevoClient posts messages to the Brevo API.
type BrevoClient struct {
	apiURL string
	apiKey string
	from   Address
	http   *http.Client
	logger *slog.Logger
}

// NewBrevoClient builds a client. An empty apiURL selects DefaultAPIURL.
func NewBrevoClient(apiURL, apiKey string, from Address, logger *slog.Logger) *BrevoClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrevoClient{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send posts msg. A non-2xx response yields an error wrapping models.ErrEmailDelivery.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(brevoRequest{
		Sender:      c.from,
		To:          []Address{{Email: msg.To}},
		Subject:     msg.Subject,
		TextContent: msg.Text,
	})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrEmailDelivery, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	c.logger.Info("mail sent", "to", msg.To, "subject", msg.Subject, "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", models.ErrEmailDelivery, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// when no API key is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg and never fails.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail not sent (no provider configured)",
		"to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
