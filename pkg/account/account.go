package account

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"
)

// Role is the coarse permission class of an account
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
)

// ParseRole maps s to a Role. An empty string is a customer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleCustomer, nil
	case RoleCustomer, RoleAdmin, RoleVendor:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Account is the persisted security record of a user.
//
// Verification and reset tokens are kept only as SHA-256 digests. LockedUntil is only set once
// FailedLoginAttempts reached the configured maximum, and TwoFactorEnabled implies a secret.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role"`

	PasswordHash string `json:"password_hash"`

	FailedLoginAttempts int        `json:"failed_login_attempts"`
	AccountLockedUntil  *time.Time `json:"account_locked_until,omitempty"`

	EmailVerified              bool       `json:"email_verified"`
	EmailVerificationTokenHash string     `json:"email_verification_token_hash,omitempty"`
	EmailVerificationExpires   *time.Time `json:"email_verification_expires,omitempty"`

	PasswordResetTokenHash string     `json:"password_reset_token_hash,omitempty"`
	PasswordResetExpires   *time.Time `json:"password_reset_expires,omitempty"`

	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	TwoFactorSecret  string `json:"two_factor_secret,omitempty"`

	RefreshTokenHash string `json:"refresh_token_hash,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"last_login_ip,omitempty"`

	IsActive bool `json:"is_active"`

	// Version is bumped by every successful Save and used for compare-and-set.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLocked reports whether the lock is still in force at now.
func (a Account) IsLocked(now time.Time) bool {
	return a.AccountLockedUntil != nil && a.AccountLockedUntil.After(now)
}

// Clone returns a copy that shares no pointers with a.
func (a Account) Clone() Account {
	c := a
	c.AccountLockedUntil = cloneTime(a.AccountLockedUntil)
	c.EmailVerificationExpires = cloneTime(a.EmailVerificationExpires)
	c.PasswordResetExpires = cloneTime(a.PasswordResetExpires)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PublicAccount is the view of an account that may leave the service.
// It carries no password hash, token digests or 2FA secret.
type PublicAccount struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone,omitempty"`
	Role             Role       `json:"role"`
	EmailVerified    bool       `json:"email_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	IsActive         bool       `json:"is_active"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP      string     `json:"last_login_ip,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Public strips credentials and secrets.
func (a Account) Public() PublicAccount {
	var p PublicAccount
	src := a.Clone()
	if err := copier.Copy(&p, &src); err != nil {
		// copier only fails on invalid destinations; fall back to explicit fields
		p = PublicAccount{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
	}
	return p
}
