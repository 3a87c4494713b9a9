// Package notification delivers verification and password reset links to account holders.
//
// EmailNotifier renders the bundled templates and sends them over SMTP with go-mail.
// AsyncNotifier wraps another notifier and delivers from a background queue.
// LogNotifier only records that a token was issued and is meant for local development.
// MockNotifier captures tokens for tests.
package notification
