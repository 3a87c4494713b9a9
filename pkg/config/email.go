package config

import (
	"github.com/tendant/shop-auth/pkg/notification"
)

// EmailConfig holds SMTP email configuration. An empty Host disables email delivery.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
	BaseURL  string `env:"EMAIL_LINK_BASE_URL" env-default:"http://localhost:3000"`
}

// Enabled reports whether SMTP delivery is configured
func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}

// ToLinkConfig builds link settings whose lifetimes match the security config
func (e EmailConfig) ToLinkConfig(d SecurityDurations) notification.LinkConfig {
	links := notification.DefaultLinkConfig(e.BaseURL)
	links.VerificationTTL = d.VerificationTokenTTL
	links.ResetTTL = d.ResetTokenTTL
	return links
}
