package accountsecurity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/tendant/shop-auth/pkg/account"
	apperrors "github.com/tendant/shop-auth/pkg/errors"
	"github.com/tendant/shop-auth/pkg/login"
	"github.com/tendant/shop-auth/pkg/notification"
	"github.com/tendant/shop-auth/pkg/tokengenerator"
	"github.com/tendant/shop-auth/pkg/twofa"
	"github.com/tendant/shop-auth/pkg/utils"
)

// dummyPassword is hashed once and compared against when a login names an unknown email,
// so that path costs one password verification like every other.
const dummyPassword = "dummy-password-for-unknown-accounts"

const retryBackoff = 10 * time.Millisecond

// SecretGenerator produces opaque tokens and TOTP secrets. *twofa.Generator implements it.
type SecretGenerator interface {
	RandomOpaqueToken() (string, error)
	GenerateTotpSecret(label string) (twofa.Enrollment, error)
	VerifyCode(secret, code string) bool
}

// Service owns the account security state machine. It keeps no state between calls; every
// transition is a compare-and-set write to the account repository.
type Service struct {
	repo     account.Repository
	hasher   login.PasswordHasher
	codec    tokengenerator.TokenCodec
	secrets  SecretGenerator
	notifier notification.AccountNotifier
	policy   login.PasswordPolicyChecker
	logger   *slog.Logger
	now      func() time.Time

	maxLoginAttempts     int
	lockDuration         time.Duration
	verificationTokenTTL time.Duration
	resetTokenTTL        time.Duration
	updateRetries        uint64

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(
	repo account.Repository,
	hasher login.PasswordHasher,
	codec tokengenerator.TokenCodec,
	secrets SecretGenerator,
	notifier notification.AccountNotifier,
	opts ...Option,
) *Service {
	s := &Service{
		repo:                 repo,
		hasher:               hasher,
		codec:                codec,
		secrets:              secrets,
		notifier:             notifier,
		policy:               login.NewDefaultPasswordPolicyChecker(nil),
		logger:               slog.Default().With("service", "accountsecurity"),
		now:                  time.Now,
		maxLoginAttempts:     DefaultMaxLoginAttempts,
		lockDuration:         DefaultLockDuration,
		verificationTokenTTL: DefaultVerificationTokenTTL,
		resetTokenTTL:        DefaultResetTokenTTL,
		updateRetries:        DefaultUpdateRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified account and hands a verification token to the notifier.
func (s *Service) Register(ctx context.Context, params RegisterParams) (account.PublicAccount, error) {
	email := utils.NormalizeEmail(params.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return account.PublicAccount{}, apperrors.InvalidInput("email", "not a valid address")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return account.PublicAccount{}, apperrors.InvalidInput("name", "is required")
	}
	role, err := account.ParseRole(params.Role)
	if err != nil {
		return account.PublicAccount{}, apperrors.InvalidInput("role", err.Error())
	}

	_, err = s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return account.PublicAccount{}, apperrors.New(apperrors.ErrCodeConflict, "email already registered")
	case !errors.Is(err, account.ErrAccountNotFound):
		return account.PublicAccount{}, s.unavailable("register", err)
	}

	if err := s.policy.CheckPasswordComplexity(params.Password); err != nil {
		return account.PublicAccount{}, errInvalidPassword(err)
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return account.PublicAccount{}, s.unavailable("register", err)
	}
	token, err := s.secrets.RandomOpaqueToken()
	if err != nil {
		return account.PublicAccount{}, s.unavailable("register", err)
	}

	now := s.now().UTC()
	expires := now.Add(s.verificationTokenTTL)
	created, err := s.repo.Create(ctx, account.Account{
		ID:                         uuid.NewString(),
		Email:                      email,
		Name:                       name,
		Phone:                      strings.TrimSpace(params.Phone),
		Role:                       role,
		PasswordHash:               passwordHash,
		EmailVerificationTokenHash: utils.HashToken(token),
		EmailVerificationExpires:   &expires,
		IsActive:                   true,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	})
	if errors.Is(err, account.ErrEmailTaken) {
		return account.PublicAccount{}, apperrors.New(apperrors.ErrCodeConflict, "email already registered")
	}
	if err != nil {
		return account.PublicAccount{}, s.unavailable("register", err)
	}

	s.logger.Info("Account registered", "account_id", created.ID, "role", created.Role)
	public := created.Public()
	if err := s.notifier.OnVerificationTokenIssued(ctx, public, token); err != nil {
		s.logger.Error("Failed to notify verification token", "account_id", created.ID, "err", err)
	}
	return public, nil
}

// Login authenticates email and password, plus a TOTP code when two-factor is enabled.
//
// The checks run in a fixed order: unknown account, lock, deactivation, password, second factor.
// Wrong passwords and wrong TOTP codes share one failure counter.
func (s *Service) Login(ctx context.Context, params LoginParams) (LoginResult, error) {
	acc, err := s.repo.FindByEmail(ctx, utils.NormalizeEmail(params.Email))
	if errors.Is(err, account.ErrAccountNotFound) {
		s.hasher.Verify(params.Password, s.dummyPasswordDigest())
		return LoginResult{}, errInvalidCredentials()
	}
	if err != nil {
		return LoginResult{}, s.unavailable("login", err)
	}

	now := s.now()
	if acc.IsLocked(now) {
		return LoginResult{}, errAccountLocked(*acc.AccountLockedUntil, now)
	}
	if !acc.IsActive {
		return LoginResult{}, apperrors.New(apperrors.ErrCodeAccountDeactivated, "account is deactivated")
	}

	if !s.hasher.Verify(params.Password, acc.PasswordHash) {
		if err := s.recordFailure(ctx, acc); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, errInvalidCredentials()
	}

	if acc.TwoFactorEnabled {
		if params.TwoFactorCode == "" {
			return LoginResult{}, apperrors.New(apperrors.ErrCode2FARequired, "two-factor code required")
		}
		if !s.secrets.VerifyCode(acc.TwoFactorSecret, params.TwoFactorCode) {
			if err := s.recordFailure(ctx, acc); err != nil {
				return LoginResult{}, err
			}
			return LoginResult{}, errInvalidTwoFactorCode()
		}
	}

	pair, err := s.issueTokens(acc)
	if err != nil {
		return LoginResult{}, s.unavailable("login", err, "account_id", acc.ID)
	}

	saved, err := s.update(ctx, acc, func(a *account.Account) error {
		loginAt := s.now().UTC()
		a.FailedLoginAttempts = 0
		a.AccountLockedUntil = nil
		a.LastLoginAt = &loginAt
		a.LastLoginIP = params.ClientIP
		a.RefreshTokenHash = utils.HashToken(pair.RefreshToken)
		return nil
	})
	if err != nil {
		return LoginResult{}, s.unavailable("login", err, "account_id", acc.ID)
	}

	s.logger.Info("Login succeeded", "account_id", saved.ID, "client_ip", params.ClientIP)
	return LoginResult{Account: saved.Public(), TokenPair: pair}, nil
}

// RefreshAccessToken rotates the refresh token. The presented token must be the one most
// recently issued to the account; anything older fails as an invalid token.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (tokengenerator.TokenPair, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return tokengenerator.TokenPair{}, errInvalidToken()
	}

	acc, err := s.repo.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return tokengenerator.TokenPair{}, errInvalidToken()
	}
	if err != nil {
		return tokengenerator.TokenPair{}, s.unavailable("refresh", err)
	}
	if !acc.IsActive || !utils.TokenMatchesHash(refreshToken, acc.RefreshTokenHash) {
		return tokengenerator.TokenPair{}, errInvalidToken()
	}

	pair, err := s.issueTokens(acc)
	if err != nil {
		return tokengenerator.TokenPair{}, s.unavailable("refresh", err, "account_id", acc.ID)
	}

	_, err = s.update(ctx, acc, func(a *account.Account) error {
		// A concurrent refresh may have rotated the token since it was loaded.
		if !a.IsActive || !utils.TokenMatchesHash(refreshToken, a.RefreshTokenHash) {
			return errInvalidToken()
		}
		a.RefreshTokenHash = utils.HashToken(pair.RefreshToken)
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid) {
		return tokengenerator.TokenPair{}, err
	}
	if err != nil {
		return tokengenerator.TokenPair{}, s.unavailable("refresh", err, "account_id", acc.ID)
	}
	return pair, nil
}

// Logout drops the stored refresh token digest. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	acc, err := s.load(ctx, "logout", accountID)
	if err != nil {
		return err
	}
	if acc.RefreshTokenHash == "" {
		return nil
	}
	_, err = s.update(ctx, acc, func(a *account.Account) error {
		a.RefreshTokenHash = ""
		return nil
	})
	if err != nil {
		return s.unavailable("logout", err, "account_id", accountID)
	}
	return nil
}

// VerifyEmail consumes an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (account.PublicAccount, error) {
	if token == "" {
		return account.PublicAccount{}, errInvalidOrExpiredToken()
	}
	tokenHash := utils.HashToken(token)
	acc, err := s.repo.FindByVerificationToken(ctx, tokenHash)
	if errors.Is(err, account.ErrAccountNotFound) {
		return account.PublicAccount{}, errInvalidOrExpiredToken()
	}
	if err != nil {
		return account.PublicAccount{}, s.unavailable("verify_email", err)
	}

	saved, err := s.update(ctx, acc, func(a *account.Account) error {
		if a.EmailVerificationTokenHash != tokenHash || expired(a.EmailVerificationExpires, s.now()) {
			return errInvalidOrExpiredToken()
		}
		a.EmailVerified = true
		a.EmailVerificationTokenHash = ""
		a.EmailVerificationExpires = nil
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCodeTokenInvalidOrExpired) {
		return account.PublicAccount{}, err
	}
	if err != nil {
		return account.PublicAccount{}, s.unavailable("verify_email", err, "account_id", acc.ID)
	}

	s.logger.Info("Email verified", "account_id", saved.ID)
	return saved.Public(), nil
}

// ResendVerification issues a fresh verification token for an unverified account. The returned
// message is the same whether or not anything was sent.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	acc, err := s.repo.FindByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, account.ErrAccountNotFound) {
		return VerificationResentMessage, nil
	}
	if err != nil {
		return "", s.unavailable("resend_verification", err)
	}
	if acc.EmailVerified || !acc.IsActive {
		return VerificationResentMessage, nil
	}

	token, err := s.secrets.RandomOpaqueToken()
	if err != nil {
		return "", s.unavailable("resend_verification", err)
	}
	saved, err := s.update(ctx, acc, func(a *account.Account) error {
		expires := s.now().UTC().Add(s.verificationTokenTTL)
		a.EmailVerificationTokenHash = utils.HashToken(token)
		a.EmailVerificationExpires = &expires
		return nil
	})
	if err != nil {
		return "", s.unavailable("resend_verification", err, "account_id", acc.ID)
	}

	if err := s.notifier.OnVerificationTokenIssued(ctx, saved.Public(), token); err != nil {
		s.logger.Error("Failed to notify verification token", "account_id", saved.ID, "err", err)
	}
	return VerificationResentMessage, nil
}

// RequestPasswordReset issues a reset token when the email belongs to an account. The returned
// message never reveals whether it does.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	acc, err := s.repo.FindByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, account.ErrAccountNotFound) {
		return PasswordResetRequestedMessage, nil
	}
	if err != nil {
		return "", s.unavailable("request_password_reset", err)
	}

	token, err := s.secrets.RandomOpaqueToken()
	if err != nil {
		return "", s.unavailable("request_password_reset", err)
	}
	saved, err := s.update(ctx, acc, func(a *account.Account) error {
		expires := s.now().UTC().Add(s.resetTokenTTL)
		a.PasswordResetTokenHash = utils.HashToken(token)
		a.PasswordResetExpires = &expires
		return nil
	})
	if err != nil {
		return "", s.unavailable("request_password_reset", err, "account_id", acc.ID)
	}

	s.logger.Info("Password reset requested", "account_id", saved.ID)
	if err := s.notifier.OnPasswordResetTokenIssued(ctx, saved.Public(), token); err != nil {
		s.logger.Error("Failed to notify password reset token", "account_id", saved.ID, "err", err)
	}
	return PasswordResetRequestedMessage, nil
}

// ResetPassword consumes a reset token and sets a new password. Every session is revoked and
// any lockout is cleared.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return errInvalidOrExpiredToken()
	}
	tokenHash := utils.HashToken(token)
	acc, err := s.repo.FindByResetToken(ctx, tokenHash)
	if errors.Is(err, account.ErrAccountNotFound) {
		return errInvalidOrExpiredToken()
	}
	if err != nil {
		return s.unavailable("reset_password", err)
	}
	if expired(acc.PasswordResetExpires, s.now()) {
		return errInvalidOrExpiredToken()
	}

	if err := s.policy.CheckPasswordComplexity(newPassword); err != nil {
		return errInvalidPassword(err)
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.unavailable("reset_password", err, "account_id", acc.ID)
	}

	_, err = s.update(ctx, acc, func(a *account.Account) error {
		if a.PasswordResetTokenHash != tokenHash || expired(a.PasswordResetExpires, s.now()) {
			return errInvalidOrExpiredToken()
		}
		a.PasswordHash = passwordHash
		a.PasswordResetTokenHash = ""
		a.PasswordResetExpires = nil
		a.RefreshTokenHash = ""
		a.FailedLoginAttempts = 0
		a.AccountLockedUntil = nil
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCodeTokenInvalidOrExpired) {
		return err
	}
	if err != nil {
		return s.unavailable("reset_password", err, "account_id", acc.ID)
	}

	s.logger.Info("Password reset", "account_id", acc.ID)
	return nil
}

// ChangePassword replaces the password of a signed-in account and revokes its refresh token.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	acc, err := s.load(ctx, "change_password", accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(currentPassword, acc.PasswordHash) {
		return errInvalidCredentials()
	}
	if err := s.policy.CheckPasswordComplexity(newPassword); err != nil {
		return errInvalidPassword(err)
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.unavailable("change_password", err, "account_id", accountID)
	}

	_, err = s.update(ctx, acc, func(a *account.Account) error {
		a.PasswordHash = passwordHash
		a.RefreshTokenHash = ""
		return nil
	})
	if err != nil {
		return s.unavailable("change_password", err, "account_id", accountID)
	}

	s.logger.Info("Password changed", "account_id", accountID)
	return nil
}

// Setup2FA stores a pending TOTP secret. Two-factor stays disabled until Enable2FA confirms it.
func (s *Service) Setup2FA(ctx context.Context, accountID string) (twofa.Enrollment, error) {
	acc, err := s.load(ctx, "setup_2fa", accountID)
	if err != nil {
		return twofa.Enrollment{}, err
	}
	if acc.TwoFactorEnabled {
		return twofa.Enrollment{}, apperrors.New(apperrors.ErrCodeConflict, "two-factor authentication is already enabled")
	}

	enrollment, err := s.secrets.GenerateTotpSecret(acc.Email)
	if err != nil {
		return twofa.Enrollment{}, s.unavailable("setup_2fa", err, "account_id", accountID)
	}
	_, err = s.update(ctx, acc, func(a *account.Account) error {
		if a.TwoFactorEnabled {
			return apperrors.New(apperrors.ErrCodeConflict, "two-factor authentication is already enabled")
		}
		a.TwoFactorSecret = enrollment.Secret
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCodeConflict) {
		return twofa.Enrollment{}, err
	}
	if err != nil {
		return twofa.Enrollment{}, s.unavailable("setup_2fa", err, "account_id", accountID)
	}
	return enrollment, nil
}

// Enable2FA turns on two-factor once code matches the pending secret.
func (s *Service) Enable2FA(ctx context.Context, accountID, code string) error {
	acc, err := s.load(ctx, "enable_2fa", accountID)
	if err != nil {
		return err
	}
	if acc.TwoFactorSecret == "" || !s.secrets.VerifyCode(acc.TwoFactorSecret, code) {
		return errInvalidTwoFactorCode()
	}
	if acc.TwoFactorEnabled {
		return nil
	}

	secret := acc.TwoFactorSecret
	_, err = s.update(ctx, acc, func(a *account.Account) error {
		if a.TwoFactorSecret != secret {
			return errInvalidTwoFactorCode()
		}
		a.TwoFactorEnabled = true
		return nil
	})
	if apperrors.IsCode(err, apperrors.ErrCode2FAInvalid) {
		return err
	}
	if err != nil {
		return s.unavailable("enable_2fa", err, "account_id", accountID)
	}

	s.logger.Info("Two-factor authentication enabled", "account_id", accountID)
	return nil
}

// Disable2FA clears two-factor after re-checking the password.
func (s *Service) Disable2FA(ctx context.Context, accountID, password string) error {
	acc, err := s.load(ctx, "disable_2fa", accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(password, acc.PasswordHash) {
		return errInvalidCredentials()
	}

	_, err = s.update(ctx, acc, func(a *account.Account) error {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = ""
		return nil
	})
	if err != nil {
		return s.unavailable("disable_2fa", err, "account_id", accountID)
	}

	s.logger.Info("Two-factor authentication disabled", "account_id", accountID)
	return nil
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (account.PublicAccount, error) {
	acc, err := s.load(ctx, "get_account", accountID)
	if err != nil {
		return account.PublicAccount{}, err
	}
	return acc.Public(), nil
}

// VerifyAccessToken validates a bearer access token.
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*tokengenerator.Claims, error) {
	claims, err := s.codec.VerifyAccessToken(token)
	if err != nil {
		return nil, errInvalidToken()
	}
	return claims, nil
}

// Deactivate disables the account and revokes its refresh token.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	acc, err := s.load(ctx, "deactivate", accountID)
	if err != nil {
		return err
	}
	_, err = s.update(ctx, acc, func(a *account.Account) error {
		a.IsActive = false
		a.RefreshTokenHash = ""
		return nil
	})
	if err != nil {
		return s.unavailable("deactivate", err, "account_id", accountID)
	}

	s.logger.Info("Account deactivated", "account_id", accountID)
	return nil
}

// recordFailure counts a failed password or TOTP attempt and locks the account on reaching the
// maximum. A lock that already expired starts a new count.
func (s *Service) recordFailure(ctx context.Context, acc account.Account) error {
	saved, err := s.update(ctx, acc, func(a *account.Account) error {
		now := s.now().UTC()
		if a.AccountLockedUntil != nil && !a.IsLocked(now) {
			a.FailedLoginAttempts = 0
			a.AccountLockedUntil = nil
		}
		a.FailedLoginAttempts++
		if a.FailedLoginAttempts >= s.maxLoginAttempts {
			until := now.Add(s.lockDuration)
			a.AccountLockedUntil = &until
		}
		return nil
	})
	if err != nil {
		return s.unavailable("record_failure", err, "account_id", acc.ID)
	}
	if saved.AccountLockedUntil != nil && saved.FailedLoginAttempts == s.maxLoginAttempts {
		s.logger.Info("Account locked", "account_id", saved.ID, "until", saved.AccountLockedUntil)
	}
	return nil
}

// update applies mutate to acc and saves it. When the save loses a version race the account is
// reloaded and mutate runs again against the fresh copy. Errors returned by mutate stop the
// retries and are returned as is.
func (s *Service) update(ctx context.Context, acc account.Account, mutate func(*account.Account) error) (account.Account, error) {
	current := acc
	reload := false
	var saved account.Account

	backoff := retry.WithMaxRetries(s.updateRetries, retry.NewConstant(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if reload {
			fresh, err := s.repo.FindByID(ctx, acc.ID)
			if err != nil {
				return err
			}
			current = fresh
		}
		reload = true

		next := current.Clone()
		if err := mutate(&next); err != nil {
			return err
		}
		next.UpdatedAt = s.now().UTC()

		out, err := s.repo.Save(ctx, next)
		if errors.Is(err, account.ErrVersionConflict) {
			s.logger.Debug("Account version conflict, retrying", "account_id", acc.ID)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		saved = out
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return saved, nil
}

// load fetches an account by id, mapping a miss to NOT_FOUND.
func (s *Service) load(ctx context.Context, op, accountID string) (account.Account, error) {
	acc, err := s.repo.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return account.Account{}, errAccountNotFound()
	}
	if err != nil {
		return account.Account{}, s.unavailable(op, err, "account_id", accountID)
	}
	return acc, nil
}

func (s *Service) issueTokens(acc account.Account) (tokengenerator.TokenPair, error) {
	pair, err := tokengenerator.IssuePair(s.codec, tokengenerator.Claims{
		SubjectID: acc.ID,
		Email:     acc.Email,
		Role:      string(acc.Role),
	})
	if err != nil {
		return tokengenerator.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return pair, nil
}

func (s *Service) dummyPasswordDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("Failed to hash dummy password", "err", err)
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// expired reports whether a token expiry is missing or already in the past at now.
func expired(expires *time.Time, now time.Time) bool {
	return expires == nil || now.After(*expires)
}
