// Package mailer sends the shop's transactional email through Resend.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// Mailer is the transactional email surface the fulfillment and auth
// flows depend on. Implementations must be safe for concurrent use.
type Mailer interface {
	SendAccountCredentials(ctx context.Context, to, productName, password string, expiresAt time.Time) error
	SendRenewalConfirmation(ctx context.Context, to, productName string, newExpiry time.Time) error
	SendLicenseKey(ctx context.Context, to, productName, licenseKey string) error
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (m *ResendMailer) send(ctx context.Context, to, subject, html string) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

func (m *ResendMailer) SendAccountCredentials(ctx context.Context, to, productName, password string, expiresAt time.Time) error {
	html := fmt.Sprintf(`<h2>Your %s account is ready</h2>
<p>Sign in with your email address and this password:</p>
<p style="font-size:18px"><strong>%s</strong></p>
<p>Your subscription is active until <strong>%s</strong>.</p>
<p>You can change the password from the desktop app at any time.</p>`,
		productName, password, expiresAt.Format("January 2, 2006"))
	return m.send(ctx, to, fmt.Sprintf("Your %s account", productName), html)
}

func (m *ResendMailer) SendRenewalConfirmation(ctx context.Context, to, productName string, newExpiry time.Time) error {
	html := fmt.Sprintf(`<h2>Renewal confirmed</h2>
<p>Your %s subscription has been extended.</p>
<p>New expiry date: <strong>%s</strong>.</p>`,
		productName, newExpiry.Format("January 2, 2006"))
	return m.send(ctx, to, fmt.Sprintf("%s renewal confirmed", productName), html)
}

func (m *ResendMailer) SendLicenseKey(ctx context.Context, to, productName, licenseKey string) error {
	html := fmt.Sprintf(`<h2>Your %s license key</h2>
<p>Activate the desktop app with this key:</p>
<p style="font-size:18px"><strong>%s</strong></p>
<p>The key is bound to this email address and works on one machine at a time.</p>`,
		productName, licenseKey)
	return m.send(ctx, to, fmt.Sprintf("Your %s license key", productName), html)
}

func (m *ResendMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	html := fmt.Sprintf(`<h2>Reset your password</h2>
<p>Someone requested a password reset for this address. If that was you, use the link below within one hour:</p>
<p><a href="%s">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`, resetURL)
	return m.send(ctx, to, "Reset your password", html)
}

// LogMailer logs instead of sending. Used when no Resend API key is
// configured, which keeps local development working without email
// credentials.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendAccountCredentials(ctx context.Context, to, productName, password string, expiresAt time.Time) error {
	m.logger.Info("mail (not sent): account credentials", "to", to, "product", productName, "expires_at", expiresAt)
	return nil
}

func (m *LogMailer) SendRenewalConfirmation(ctx context.Context, to, productName string, newExpiry time.Time) error {
	m.logger.Info("mail (not sent): renewal confirmation", "to", to, "product", productName, "new_expiry", newExpiry)
	return nil
}

func (m *LogMailer) SendLicenseKey(ctx context.Context, to, productName, licenseKey string) error {
	m.logger.Info("mail (not sent): license key", "to", to, "product", productName)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	m.logger.Info("mail (not sent): password reset", "to", to, "url", resetURL)
	return nil
}
