package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFiles embed.FS

// NoticeTemplate is the source of one message in plain text and HTML
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// NoticeData is the data every template is executed with
type NoticeData struct {
	Name      string
	Email     string
	Link      string
	ExpiresIn string
}

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// DefaultTemplates returns the bundled templates keyed by notification type
func DefaultTemplates() map[NotificationType]NoticeTemplate {
	return map[NotificationType]NoticeTemplate{
		VerifyEmailNotification: {
			Subject: "Verify your email address",
			Text:    loadTemplate("templates/verify_email.txt"),
			Html:    loadTemplate("templates/verify_email.html"),
		},
		PasswordResetNotification: {
			Subject: "Reset your password",
			Text:    loadTemplate("templates/reset_password.txt"),
			Html:    loadTemplate("templates/reset_password.html"),
		},
	}
}

// render executes both bodies of t. Either may be empty when its source is empty.
func render(t NoticeTemplate, data NoticeData) (string, string, error) {
	var textBody, htmlBody string

	if t.Text != "" {
		tmpl, err := texttemplate.New("text").Parse(t.Text)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse text template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("failed to execute text template: %w", err)
		}
		textBody = buf.String()
	}

	if t.Html != "" {
		tmpl, err := htmltemplate.New("html").Parse(t.Html)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse HTML template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("failed to execute HTML template: %w", err)
		}
		htmlBody = buf.String()
	}

	return textBody, htmlBody, nil
}
