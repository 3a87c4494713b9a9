package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/shop-auth/pkg/utils"
)

// DB is the subset of pgxpool.Pool used by PostgresRepository
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, email, name, phone, role, password_hash,
	failed_login_attempts, account_locked_until,
	email_verified, email_verification_token_hash, email_verification_expires,
	password_reset_token_hash, password_reset_expires,
	two_factor_enabled, two_factor_secret, refresh_token_hash,
	last_login_at, last_login_ip, is_active, version, created_at, updated_at`

// PostgresRepository implements Repository on the accounts table (see migrations/account.sql)
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL account repository
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts account with version 1
func (r *PostgresRepository) Create(ctx context.Context, account Account) (Account, error) {
	account.Email = utils.NormalizeEmail(account.Email)
	account.Version = 1

	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		account.ID, account.Email, account.Name, utils.ToNullString(account.Phone), string(account.Role), account.PasswordHash,
		account.FailedLoginAttempts, account.AccountLockedUntil,
		account.EmailVerified, utils.ToNullString(account.EmailVerificationTokenHash), account.EmailVerificationExpires,
		utils.ToNullString(account.PasswordResetTokenHash), account.PasswordResetExpires,
		account.TwoFactorEnabled, utils.ToNullString(account.TwoFactorSecret), utils.ToNullString(account.RefreshTokenHash),
		account.LastLoginAt, utils.ToNullString(account.LastLoginIP), account.IsActive, account.Version,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

// FindByID finds an account by id
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByEmail finds an account by email, ignoring case
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`, utils.NormalizeEmail(email))
}

// FindByVerificationToken finds the account holding the given verification token digest
func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (Account, error) {
	if tokenHash == "" {
		return Account{}, ErrAccountNotFound
	}
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email_verification_token_hash = $1`, tokenHash)
}

// FindByResetToken finds the account holding the given password reset token digest
func (r *PostgresRepository) FindByResetToken(ctx context.Context, tokenHash string) (Account, error) {
	if tokenHash == "" {
		return Account{}, ErrAccountNotFound
	}
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE password_reset_token_hash = $1`, tokenHash)
}

// Save updates every mutable column in a single statement guarded by the version column.
func (r *PostgresRepository) Save(ctx context.Context, account Account) (Account, error) {
	saved := account.Clone()
	err := r.db.QueryRow(ctx, `
		UPDATE accounts SET
			name = $3, phone = $4, role = $5, password_hash = $6,
			failed_login_attempts = $7, account_locked_until = $8,
			email_verified = $9, email_verification_token_hash = $10, email_verification_expires = $11,
			password_reset_token_hash = $12, password_reset_expires = $13,
			two_factor_enabled = $14, two_factor_secret = $15, refresh_token_hash = $16,
			last_login_at = $17, last_login_ip = $18, is_active = $19, updated_at = $20,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING email, created_at, version`,
		account.ID, account.Version,
		account.Name, utils.ToNullString(account.Phone), string(account.Role), account.PasswordHash,
		account.FailedLoginAttempts, account.AccountLockedUntil,
		account.EmailVerified, utils.ToNullString(account.EmailVerificationTokenHash), account.EmailVerificationExpires,
		utils.ToNullString(account.PasswordResetTokenHash), account.PasswordResetExpires,
		account.TwoFactorEnabled, utils.ToNullString(account.TwoFactorSecret), utils.ToNullString(account.RefreshTokenHash),
		account.LastLoginAt, utils.ToNullString(account.LastLoginIP), account.IsActive, account.UpdatedAt,
	).Scan(&saved.Email, &saved.CreatedAt, &saved.Version)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("failed to update account: %w", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
		return Account{}, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return Account{}, ErrVersionConflict
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (Account, error) {
	var (
		a                                Account
		role                             string
		phone, verifyHash, resetHash     *string
		secret, refreshHash, lastLoginIP *string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Name, &phone, &role, &a.PasswordHash,
		&a.FailedLoginAttempts, &a.AccountLockedUntil,
		&a.EmailVerified, &verifyHash, &a.EmailVerificationExpires,
		&resetHash, &a.PasswordResetExpires,
		&a.TwoFactorEnabled, &secret, &refreshHash,
		&a.LastLoginAt, &lastLoginIP, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		// ids that are not UUIDs cannot match a row
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	a.Role = Role(role)
	a.Phone = utils.FromNullString(phone)
	a.EmailVerificationTokenHash = utils.FromNullString(verifyHash)
	a.PasswordResetTokenHash = utils.FromNullString(resetHash)
	a.TwoFactorSecret = utils.FromNullString(secret)
	a.RefreshTokenHash = utils.FromNullString(refreshHash)
	a.LastLoginIP = utils.FromNullString(lastLoginIP)
	return a, nil
}
