package login

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt work factor used when none is configured.
const DefaultHashCost = 12

// BcryptHasher implements PasswordHasher using bcrypt with an adjustable cost
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher for the given cost. Out of range costs fall back to DefaultHashCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash implements PasswordHasher.Hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashedBytes), nil
}

// Verify implements PasswordHasher.Verify
func (h *BcryptHasher) Verify(password, digest string) bool {
	if password == "" || digest == "" {
		return false
	}
	// CompareHashAndPassword is constant time and returns an error for both mismatch and malformed digests.
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
