package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// OpaqueTokenBytes is the entropy of verification and reset tokens.
const OpaqueTokenBytes = 32

// GenerateOpaqueToken returns a hex encoded random token of OpaqueTokenBytes bytes (64 characters).
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 digest used to persist bearer and one-time tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatchesHash compares token against a stored digest in constant time.
func TokenMatchesHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// NormalizeEmail trims and lowercases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ToNullString returns nil for an empty string so optional columns are stored as NULL.
func ToNullString(str string) *string {
	if str == "" {
		return nil
	}
	return &str
}

// FromNullString is the inverse of ToNullString.
func FromNullString(str *string) string {
	if str == nil {
		return ""
	}
	return *str
}
