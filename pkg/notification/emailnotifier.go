package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/shop-auth/pkg/account"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// LinkConfig builds the links placed in messages
type LinkConfig struct {
	// BaseURL of the storefront, e.g. https://shop.example.com
	BaseURL           string
	VerifyEmailPath   string
	ResetPasswordPath string
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
}

// DefaultLinkConfig returns the storefront paths and token lifetimes used by default
func DefaultLinkConfig(baseURL string) LinkConfig {
	return LinkConfig{
		BaseURL:           baseURL,
		VerifyEmailPath:   "/verify-email",
		ResetPasswordPath: "/reset-password",
		VerificationTTL:   24 * time.Hour,
		ResetTTL:          time.Hour,
	}
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier delivers verification and reset links over SMTP
type EmailNotifier struct {
	SMTPConfig SMTPConfig
	links      LinkConfig
	templates  map[NotificationType]NoticeTemplate
	sender     mailSender
}

func NewEmailNotifier(config SMTPConfig, links LinkConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}

	// Only add authentication if username and password are provided
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if config.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		slog.Info("Using NoTLS policy", "host", config.Host)
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create mail client", "err", err)
		return nil, err
	}

	return newEmailNotifier(config, links, client), nil
}

func newEmailNotifier(config SMTPConfig, links LinkConfig, sender mailSender) *EmailNotifier {
	return &EmailNotifier{
		SMTPConfig: config,
		links:      links,
		templates:  DefaultTemplates(),
		sender:     sender,
	}
}

// WithTemplate overrides the bundled template for a notification type
func (e *EmailNotifier) WithTemplate(notificationType NotificationType, t NoticeTemplate) *EmailNotifier {
	e.templates[notificationType] = t
	return e
}

func (e *EmailNotifier) OnVerificationTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	link := e.link(e.links.VerifyEmailPath, token)
	return e.send(ctx, VerifyEmailNotification, recipient, link, e.links.VerificationTTL)
}

func (e *EmailNotifier) OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	link := e.link(e.links.ResetPasswordPath, token)
	return e.send(ctx, PasswordResetNotification, recipient, link, e.links.ResetTTL)
}

func (e *EmailNotifier) link(path, token string) string {
	return strings.TrimRight(e.links.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (e *EmailNotifier) send(ctx context.Context, notificationType NotificationType, recipient account.PublicAccount, link string, ttl time.Duration) error {
	if recipient.Email == "" {
		return errors.New("email notification requires a recipient address")
	}
	t, ok := e.templates[notificationType]
	if !ok {
		return fmt.Errorf("no template registered for %s", notificationType)
	}

	textBody, htmlBody, err := render(t, NoticeData{
		Name:      recipient.Name,
		Email:     recipient.Email,
		Link:      link,
		ExpiresIn: ttl.String(),
	})
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(e.SMTPConfig.From); err != nil {
		return fmt.Errorf("failed to set from address: %w", err)
	}
	if err := msg.To(recipient.Email); err != nil {
		return fmt.Errorf("failed to set to address: %w", err)
	}
	msg.Subject(t.Subject)

	switch {
	case textBody != "" && htmlBody != "":
		msg.SetBodyString(mail.TypeTextPlain, textBody)
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	case htmlBody != "":
		msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	default:
		msg.SetBodyString(mail.TypeTextPlain, textBody)
	}

	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Error("Failed to send email", "type", notificationType, "account_id", recipient.ID, "err", err)
		return err
	}

	slog.Info("Email sent", "type", notificationType, "account_id", recipient.ID, "host", e.SMTPConfig.Host)
	return nil
}
