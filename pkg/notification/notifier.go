package notification

import (
	"context"

	"github.com/tendant/shop-auth/pkg/account"
)

// NotificationType identifies which message an event produces.
type NotificationType string

const (
	VerifyEmailNotification   NotificationType = "verify_email"
	PasswordResetNotification NotificationType = "password_reset"
)

// AccountNotifier receives one-time tokens at the moment they are issued. Delivery is fire and
// forget: callers log a returned error and carry on.
type AccountNotifier interface {
	OnVerificationTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error
	OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error
}
