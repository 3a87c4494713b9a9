package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/shop-auth/pkg/utils"
)

const defaultRedisKeyPrefix = "shopauth"

// RedisRepository implements Repository on Redis. Each account is a JSON document; emails and
// token digests are secondary keys pointing at the account id. Writes run under WATCH/MULTI.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

type RedisOption func(*RedisRepository)

// WithKeyPrefix namespaces every key written by the repository
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedisRepository creates a new Redis account repository
func NewRedisRepository(client *redis.Client, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{client: client, prefix: defaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) accountKey(id string) string {
	return r.prefix + ":account:" + id
}

func (r *RedisRepository) emailKey(email string) string {
	return r.prefix + ":account-email:" + email
}

func (r *RedisRepository) verificationKey(tokenHash string) string {
	return r.prefix + ":account-verify:" + tokenHash
}

func (r *RedisRepository) resetKey(tokenHash string) string {
	return r.prefix + ":account-reset:" + tokenHash
}

// Create stores a new account with version 1
func (r *RedisRepository) Create(ctx context.Context, account Account) (Account, error) {
	if account.ID == "" {
		return Account{}, errors.New("account id is required")
	}
	account.Email = utils.NormalizeEmail(account.Email)
	account.Version = 1

	encoded, err := json.Marshal(account)
	if err != nil {
		return Account{}, fmt.Errorf("failed to encode account: %w", err)
	}

	emailKey := r.emailKey(account.Email)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, emailKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrEmailTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, emailKey, account.ID, 0)
			pipe.Set(ctx, r.accountKey(account.ID), encoded, 0)
			if account.EmailVerificationTokenHash != "" {
				pipe.Set(ctx, r.verificationKey(account.EmailVerificationTokenHash), account.ID, 0)
			}
			if account.PasswordResetTokenHash != "" {
				pipe.Set(ctx, r.resetKey(account.PasswordResetTokenHash), account.ID, 0)
			}
			return nil
		})
		return err
	}, emailKey)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, ErrEmailTaken), errors.Is(err, redis.TxFailedErr):
		return Account{}, ErrEmailTaken
	default:
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}
}

// FindByID finds an account by id
func (r *RedisRepository) FindByID(ctx context.Context, id string) (Account, error) {
	data, err := r.client.Get(ctx, r.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return decodeAccount(data)
}

// FindByEmail finds an account by email, ignoring case
func (r *RedisRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	id, err := r.lookup(ctx, r.emailKey(utils.NormalizeEmail(email)))
	if err != nil {
		return Account{}, err
	}
	return r.FindByID(ctx, id)
}

// FindByVerificationToken finds the account holding the given verification token digest
func (r *RedisRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (Account, error) {
	if tokenHash == "" {
		return Account{}, ErrAccountNotFound
	}
	id, err := r.lookup(ctx, r.verificationKey(tokenHash))
	if err != nil {
		return Account{}, err
	}
	account, err := r.FindByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.EmailVerificationTokenHash != tokenHash {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// FindByResetToken finds the account holding the given password reset token digest
func (r *RedisRepository) FindByResetToken(ctx context.Context, tokenHash string) (Account, error) {
	if tokenHash == "" {
		return Account{}, ErrAccountNotFound
	}
	id, err := r.lookup(ctx, r.resetKey(tokenHash))
	if err != nil {
		return Account{}, err
	}
	account, err := r.FindByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.PasswordResetTokenHash != tokenHash {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// Save replaces the stored document if its version still matches and moves the token indexes.
func (r *RedisRepository) Save(ctx context.Context, account Account) (Account, error) {
	key := r.accountKey(account.ID)
	var saved Account

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrAccountNotFound
			}
			return err
		}
		stored, err := decodeAccount(data)
		if err != nil {
			return err
		}
		if stored.Version != account.Version {
			return ErrVersionConflict
		}

		next := account.Clone()
		next.Email = stored.Email
		next.CreatedAt = stored.CreatedAt
		next.Version = stored.Version + 1
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if stored.EmailVerificationTokenHash != next.EmailVerificationTokenHash {
				if stored.EmailVerificationTokenHash != "" {
					pipe.Del(ctx, r.verificationKey(stored.EmailVerificationTokenHash))
				}
				if next.EmailVerificationTokenHash != "" {
					pipe.Set(ctx, r.verificationKey(next.EmailVerificationTokenHash), next.ID, 0)
				}
			}
			if stored.PasswordResetTokenHash != next.PasswordResetTokenHash {
				if stored.PasswordResetTokenHash != "" {
					pipe.Del(ctx, r.resetKey(stored.PasswordResetTokenHash))
				}
				if next.PasswordResetTokenHash != "" {
					pipe.Set(ctx, r.resetKey(next.PasswordResetTokenHash), next.ID, 0)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, key)

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrVersionConflict):
		return Account{}, err
	case errors.Is(err, redis.TxFailedErr):
		return Account{}, ErrVersionConflict
	default:
		return Account{}, fmt.Errorf("failed to save account: %w", err)
	}
}

func (r *RedisRepository) lookup(ctx context.Context, key string) (string, error) {
	id, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("failed to look up account: %w", err)
	}
	return id, nil
}

func decodeAccount(data []byte) (Account, error) {
	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	return account, nil
}
