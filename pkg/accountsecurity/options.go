package accountsecurity

import (
	"log/slog"
	"time"

	"github.com/tendant/shop-auth/pkg/login"
)

// Defaults for the tunables below
const (
	DefaultMaxLoginAttempts     = 5
	DefaultLockDuration         = 15 * time.Minute
	DefaultVerificationTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL        = time.Hour
	DefaultUpdateRetries        = 3
)

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now. Lockout, token expiry and audit timestamps all read this clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxLoginAttempts sets how many consecutive failures lock the account
func WithMaxLoginAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLoginAttempts = n
		}
	}
}

func WithLockDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockDuration = d
		}
	}
}

func WithVerificationTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verificationTokenTTL = d
		}
	}
}

func WithResetTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resetTokenTTL = d
		}
	}
}

func WithPasswordPolicyChecker(checker login.PasswordPolicyChecker) Option {
	return func(s *Service) {
		if checker != nil {
			s.policy = checker
		}
	}
}

// WithUpdateRetries sets how often a save that lost a version race is retried
func WithUpdateRetries(n uint64) Option {
	return func(s *Service) {
		s.updateRetries = n
	}
}
