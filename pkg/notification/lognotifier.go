package notification

import (
	"context"
	"log/slog"

	"github.com/tendant/shop-auth/pkg/account"
)

// LogNotifier records that a token was issued without delivering it. The token itself is not logged.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notification")}
}

func (n *LogNotifier) OnVerificationTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	n.logger.InfoContext(ctx, "Verification token issued", "account_id", recipient.ID, "email", recipient.Email)
	return nil
}

func (n *LogNotifier) OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	n.logger.InfoContext(ctx, "Password reset token issued", "account_id", recipient.ID, "email", recipient.Email)
	return nil
}
