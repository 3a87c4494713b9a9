package login

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordPolicy defines the requirements for password complexity
type PasswordPolicy struct {
	MinLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
}

// PasswordPolicyChecker defines the interface for checking password complexity
type PasswordPolicyChecker interface {
	CheckPasswordComplexity(password string) error
	GetPolicy() *PasswordPolicy
}

// DefaultPasswordPolicyChecker implements the PasswordPolicyChecker interface
type DefaultPasswordPolicyChecker struct {
	policy *PasswordPolicy
}

// NewDefaultPasswordPolicyChecker creates a new default password policy checker
func NewDefaultPasswordPolicyChecker(policy *PasswordPolicy) *DefaultPasswordPolicyChecker {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &DefaultPasswordPolicyChecker{policy: policy}
}

// CheckPasswordComplexity verifies that a password meets the complexity requirements.
// Every required character class must be present; there is no scoring.
func (pc *DefaultPasswordPolicyChecker) CheckPasswordComplexity(password string) error {
	if len([]rune(password)) < pc.policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", pc.policy.MinLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes long", MaxPasswordBytes)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if pc.policy.RequireUppercase && !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if pc.policy.RequireLowercase && !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if pc.policy.RequireDigit && !hasDigit {
		return errors.New("password must contain at least one digit")
	}
	if pc.policy.RequireSpecialChar && !hasSpecial {
		return errors.New("password must contain at least one special character")
	}

	return nil
}

// GetPolicy returns the password policy
func (pc *DefaultPasswordPolicyChecker) GetPolicy() *PasswordPolicy {
	return pc.policy
}

// DefaultPasswordPolicy returns a default password policy: at least 8 characters with upper, lower,
// digit and special character classes.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:          8,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
	}
}
