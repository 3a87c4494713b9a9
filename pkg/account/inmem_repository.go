package account

import (
	"context"
	"errors"
	"sync"

	"github.com/tendant/shop-auth/pkg/utils"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	byEmail  map[string]string // normalized email -> account id
}

// NewInMemoryRepository creates a new in-memory account repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
	}
}

// Create stores a new account with version 1
func (r *InMemoryRepository) Create(ctx context.Context, account Account) (Account, error) {
	if account.ID == "" {
		return Account{}, errors.New("account id is required")
	}
	email := utils.NormalizeEmail(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return Account{}, ErrEmailTaken
	}
	if _, ok := r.accounts[account.ID]; ok {
		return Account{}, errors.New("account id already exists")
	}

	account.Email = email
	account.Version = 1
	r.accounts[account.ID] = account.Clone()
	r.byEmail[email] = account.ID
	return account.Clone(), nil
}

// FindByID finds an account by id
func (r *InMemoryRepository) FindByID(ctx context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// FindByEmail finds an account by email, ignoring case
func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[utils.NormalizeEmail(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.accounts[id].Clone(), nil
}

// FindByVerificationToken finds the account holding the given verification token digest
func (r *InMemoryRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (Account, error) {
	return r.findBy(func(a Account) bool {
		return a.EmailVerificationTokenHash == tokenHash
	}, tokenHash)
}

// FindByResetToken finds the account holding the given password reset token digest
func (r *InMemoryRepository) FindByResetToken(ctx context.Context, tokenHash string) (Account, error) {
	return r.findBy(func(a Account) bool {
		return a.PasswordResetTokenHash == tokenHash
	}, tokenHash)
}

func (r *InMemoryRepository) findBy(match func(Account) bool, key string) (Account, error) {
	if key == "" {
		return Account{}, ErrAccountNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if match(account) {
			return account.Clone(), nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// Save replaces the stored account if its version still matches
func (r *InMemoryRepository) Save(ctx context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[account.ID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if stored.Version != account.Version {
		return Account{}, ErrVersionConflict
	}

	account.Email = stored.Email
	account.CreatedAt = stored.CreatedAt
	account.Version = stored.Version + 1
	r.accounts[account.ID] = account.Clone()
	return account.Clone(), nil
}
