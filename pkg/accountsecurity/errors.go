package accountsecurity

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/tendant/shop-auth/pkg/errors"
)

func errInvalidCredentials() error {
	return apperrors.New(apperrors.ErrCodeInvalidCredentials, "invalid email or password")
}

func errInvalidToken() error {
	return apperrors.New(apperrors.ErrCodeTokenInvalid, "invalid token")
}

func errInvalidOrExpiredToken() error {
	return apperrors.New(apperrors.ErrCodeTokenInvalidOrExpired, "invalid or expired token")
}

func errInvalidTwoFactorCode() error {
	return apperrors.New(apperrors.ErrCode2FAInvalid, "invalid two-factor code")
}

func errAccountNotFound() error {
	return apperrors.NotFound("account")
}

func errInvalidPassword(reason error) error {
	return apperrors.New(apperrors.ErrCodeInvalidPassword, reason.Error())
}

// errAccountLocked reports the remaining lock time in whole minutes, rounded up.
func errAccountLocked(until, now time.Time) error {
	minutes := int(math.Ceil(until.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return apperrors.New(apperrors.ErrCodeAccountLocked,
		fmt.Sprintf("account is locked, try again in %d %s", minutes, unit)).
		WithDetail("retry_after_minutes", minutes)
}

// unavailable logs an infrastructure failure in full and returns the opaque UNAVAILABLE error.
func (s *Service) unavailable(op string, err error, args ...any) error {
	s.logger.Error("Account security operation failed", append([]any{"op", op, "err", err}, args...)...)
	return apperrors.Unavailable(err)
}
