package account

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	// ErrVersionConflict means the account changed after it was loaded.
	ErrVersionConflict = errors.New("account version conflict")
)

// Repository loads and saves account records.
//
// Emails are matched case-insensitively. Token lookups take the SHA-256 digest, never the plaintext.
// Save is a compare-and-set on Version: it succeeds only if the stored version equals
// account.Version and returns the record with the incremented version. ID, Email and CreatedAt are
// immutable after Create.
type Repository interface {
	Create(ctx context.Context, account Account) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (Account, error)
	FindByResetToken(ctx context.Context, tokenHash string) (Account, error)
	Save(ctx context.Context, account Account) (Account, error)
}
