package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Notifier composes the application's emails on top of a Sender.
type Notifier struct {
	sender  Sender
	baseURL string
	appName string
}

// NewNotifier returns a Notifier that links back to baseURL.
func NewNotifier(sender Sender, baseURL, appName string) *Notifier {
	if appName == "" {
		appName = "Expense Tracker"
	}
	return &Notifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), appName: appName}
}

// VerificationLink returns the public URL that redeems token.
func (n *Notifier) VerificationLink(token string) string {
	return n.baseURL + "/verify-email/" + url.PathEscape(token)
}

// SendVerification mails the verification link for token to email.
func (n *Notifier) SendVerification(ctx context.Context, email, username, token string) error {
	return n.sender.Send(ctx, Message{
		To:      email,
		Subject: "Verify your " + n.appName + " account",
		Text: fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\nIf you did not sign up, you can ignore this message.\n",
			username, n.VerificationLink(token)),
	})
}

// SendLoginAlert tells the user about a successful sign-in.
func (n *Notifier) SendLoginAlert(ctx context.Context, email, username string, at time.Time) error {
	return n.sender.Send(ctx, Message{
		To:      email,
		Subject: "New sign-in to " + n.appName,
		Text: fmt.Sprintf("Hello %s,\n\nYour account was signed in at %s.\nIf this was not you, change your password.\n",
			username, at.Format(time.RFC1123)),
	})
}
