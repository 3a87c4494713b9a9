package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(email string) Account {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(24 * time.Hour)
	return Account{
		ID:                         uuid.New().String(),
		Email:                      email,
		Name:                       "Alice",
		Role:                       RoleCustomer,
		PasswordHash:               "$2a$04$digest",
		EmailVerificationTokenHash: "verify-" + uuid.New().String(),
		EmailVerificationExpires:   &expires,
		IsActive:                   true,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

// testRepositoryContract runs the behavior every Repository implementation must share.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestAccount("Alice@Example.com"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.Version)
		assert.Equal(t, "alice@example.com", created.Email)

		byID, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byID.ID)
		assert.Equal(t, "Alice", byID.Name)
		assert.Equal(t, RoleCustomer, byID.Role)
		assert.Equal(t, int64(1), byID.Version)
		require.NotNil(t, byID.EmailVerificationExpires)
		assert.True(t, byID.EmailVerificationExpires.Equal(*created.EmailVerificationExpires))

		byEmail, err := repo.FindByEmail(ctx, "  ALICE@example.COM")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byToken, err := repo.FindByVerificationToken(ctx, created.EmailVerificationTokenHash)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byToken.ID)
	})

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, newTestAccount("bob@example.com"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, newTestAccount("BOB@example.com"))
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.FindByVerificationToken(ctx, "missing")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.FindByResetToken(ctx, "missing")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.FindByResetToken(ctx, "")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("save bumps version and moves tokens", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestAccount("carol@example.com"))
		require.NoError(t, err)
		oldVerify := created.EmailVerificationTokenHash

		resetExpires := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
		created.EmailVerified = true
		created.EmailVerificationTokenHash = ""
		created.EmailVerificationExpires = nil
		created.PasswordResetTokenHash = "reset-digest-1"
		created.PasswordResetExpires = &resetExpires
		created.FailedLoginAttempts = 3
		created.RefreshTokenHash = "refresh-digest"

		saved, err := repo.Save(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)

		loaded, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), loaded.Version)
		assert.True(t, loaded.EmailVerified)
		assert.Empty(t, loaded.EmailVerificationTokenHash)
		assert.Nil(t, loaded.EmailVerificationExpires)
		assert.Equal(t, 3, loaded.FailedLoginAttempts)
		assert.Equal(t, "refresh-digest", loaded.RefreshTokenHash)

		_, err = repo.FindByVerificationToken(ctx, oldVerify)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		byReset, err := repo.FindByResetToken(ctx, "reset-digest-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byReset.ID)

		loaded.PasswordResetTokenHash = "reset-digest-2"
		_, err = repo.Save(ctx, loaded)
		require.NoError(t, err)
		_, err = repo.FindByResetToken(ctx, "reset-digest-1")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.FindByResetToken(ctx, "reset-digest-2")
		assert.NoError(t, err)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestAccount("dave@example.com"))
		require.NoError(t, err)

		first := created
		first.FailedLoginAttempts = 1
		_, err = repo.Save(ctx, first)
		require.NoError(t, err)

		second := created
		second.FailedLoginAttempts = 5
		_, err = repo.Save(ctx, second)
		assert.ErrorIs(t, err, ErrVersionConflict)

		loaded, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.FailedLoginAttempts)
	})

	t.Run("save unknown account", func(t *testing.T) {
		repo := newRepo(t)
		a := newTestAccount("erin@example.com")
		a.Version = 1
		_, err := repo.Save(ctx, a)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("email is immutable", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestAccount("frank@example.com"))
		require.NoError(t, err)

		created.Email = "other@example.com"
		saved, err := repo.Save(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, "frank@example.com", saved.Email)

		_, err = repo.FindByEmail(ctx, "other@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}
