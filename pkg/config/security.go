package config

import (
	"fmt"
	"time"

	"github.com/tendant/shop-auth/pkg/accountsecurity"
	"github.com/tendant/shop-auth/pkg/login"
	"github.com/tendant/shop-auth/pkg/twofa"
	"golang.org/x/crypto/bcrypt"
)

// SecurityConfig holds the tunables of the account security engine
type SecurityConfig struct {
	AccessTokenTTL       string `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL      string `env:"REFRESH_TOKEN_TTL" env-default:"7d"`
	MaxLoginAttempts     int    `env:"MAX_LOGIN_ATTEMPTS" env-default:"5"`
	LockDuration         string `env:"LOCK_DURATION" env-default:"15m"`
	PasswordMinLength    int    `env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	HashCost             int    `env:"HASH_COST" env-default:"12"`
	ResetTokenTTL        string `env:"RESET_TOKEN_TTL" env-default:"1h"`
	VerificationTokenTTL string `env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
	TotpWindowSteps      int    `env:"TOTP_WINDOW_STEPS" env-default:"2"`
	TotpIssuer           string `env:"TOTP_ISSUER" env-default:"shop-auth"`
}

// SecurityDurations are the parsed durations of a SecurityConfig
type SecurityDurations struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	LockDuration         time.Duration
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
}

// Durations parses every duration field
func (s SecurityConfig) Durations() (SecurityDurations, error) {
	var d SecurityDurations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", s.AccessTokenTTL, &d.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", s.RefreshTokenTTL, &d.RefreshTokenTTL},
		{"LOCK_DURATION", s.LockDuration, &d.LockDuration},
		{"RESET_TOKEN_TTL", s.ResetTokenTTL, &d.ResetTokenTTL},
		{"VERIFICATION_TOKEN_TTL", s.VerificationTokenTTL, &d.VerificationTokenTTL},
	}
	for _, f := range fields {
		v, err := ParseDuration(f.value)
		if err != nil {
			return SecurityDurations{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return d, nil
}

// Validate checks ranges and duration syntax
func (s SecurityConfig) Validate() ValidationErrors {
	var errs ValidationErrors

	for _, f := range []struct{ name, value string }{
		{"ACCESS_TOKEN_TTL", s.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", s.RefreshTokenTTL},
		{"LOCK_DURATION", s.LockDuration},
		{"RESET_TOKEN_TTL", s.ResetTokenTTL},
		{"VERIFICATION_TOKEN_TTL", s.VerificationTokenTTL},
	} {
		d, err := ParseDuration(f.value)
		if err != nil {
			errs = append(errs, ValidationError{Field: f.name, Message: err.Error()})
		} else if d <= 0 {
			errs = append(errs, ValidationError{Field: f.name, Message: "must be positive"})
		}
	}

	if s.MaxLoginAttempts < 1 {
		errs = append(errs, ValidationError{Field: "MAX_LOGIN_ATTEMPTS", Message: "must be at least 1"})
	}
	if s.PasswordMinLength < 1 || s.PasswordMinLength > login.MaxPasswordBytes {
		errs = append(errs, ValidationError{Field: "PASSWORD_MIN_LENGTH", Message: fmt.Sprintf("must be between 1 and %d", login.MaxPasswordBytes)})
	}
	if s.HashCost < bcrypt.MinCost || s.HashCost > bcrypt.MaxCost {
		errs = append(errs, ValidationError{Field: "HASH_COST", Message: fmt.Sprintf("must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)})
	}
	if s.TotpWindowSteps < 0 {
		errs = append(errs, ValidationError{Field: "TOTP_WINDOW_STEPS", Message: "must not be negative"})
	}

	return errs
}

// ToPasswordPolicy returns the registration and reset password policy
func (s SecurityConfig) ToPasswordPolicy() *login.PasswordPolicy {
	policy := login.DefaultPasswordPolicy()
	policy.MinLength = s.PasswordMinLength
	return policy
}

// NewPasswordHasher returns a bcrypt hasher with HASH_COST
func (s SecurityConfig) NewPasswordHasher() *login.BcryptHasher {
	return login.NewBcryptHasher(s.HashCost)
}

// NewTotpGenerator returns a generator with TOTP_ISSUER and TOTP_WINDOW_STEPS
func (s SecurityConfig) NewTotpGenerator(now func() time.Time) *twofa.Generator {
	return twofa.NewGenerator(
		twofa.WithIssuer(s.TotpIssuer),
		twofa.WithWindowSteps(uint(s.TotpWindowSteps)),
		twofa.WithClock(now),
	)
}

// ToServiceOptions converts the config into engine options
func (s SecurityConfig) ToServiceOptions() ([]accountsecurity.Option, error) {
	d, err := s.Durations()
	if err != nil {
		return nil, err
	}
	return []accountsecurity.Option{
		accountsecurity.WithMaxLoginAttempts(s.MaxLoginAttempts),
		accountsecurity.WithLockDuration(d.LockDuration),
		accountsecurity.WithResetTokenTTL(d.ResetTokenTTL),
		accountsecurity.WithVerificationTokenTTL(d.VerificationTokenTTL),
		accountsecurity.WithPasswordPolicyChecker(login.NewDefaultPasswordPolicyChecker(s.ToPasswordPolicy())),
	}, nil
}
