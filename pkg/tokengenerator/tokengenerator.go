package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/tendant/shop-auth/pkg/errors"
)

// Token type values carried in the typ claim
const (
	AccessTokenType  = "access"
	RefreshTokenType = "refresh"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// TokenCodec signs and verifies access and refresh tokens.
type TokenCodec interface {
	IssueAccessToken(claims Claims) (string, time.Time, error)
	IssueRefreshToken(claims Claims) (string, time.Time, error)
	VerifyAccessToken(tokenStr string) (*Claims, error)
	VerifyRefreshToken(tokenStr string) (*Claims, error)
}

// Claims is the payload of an issued token. Only SubjectID, Email and Role are read on issuance;
// the remaining fields are filled in by Verify.
type Claims struct {
	SubjectID string
	Email     string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is an access token with the refresh token issued alongside it
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

type jwtClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JwtTokenCodec implements TokenCodec with HS256 and separate access and refresh secrets
type JwtTokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// CodecOption configures a JwtTokenCodec
type CodecOption func(*JwtTokenCodec)

// WithIssuer sets the iss claim issued and required on verification
func WithIssuer(issuer string) CodecOption {
	return func(c *JwtTokenCodec) {
		c.issuer = issuer
	}
}

// WithAudience sets the aud claim issued and required on verification
func WithAudience(audience string) CodecOption {
	return func(c *JwtTokenCodec) {
		c.audience = audience
	}
}

// WithAccessTokenExpiry sets the access token lifetime
func WithAccessTokenExpiry(ttl time.Duration) CodecOption {
	return func(c *JwtTokenCodec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTokenExpiry sets the refresh token lifetime
func WithRefreshTokenExpiry(ttl time.Duration) CodecOption {
	return func(c *JwtTokenCodec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithClock replaces time.Now for issuance and expiry checks
func WithClock(now func() time.Time) CodecOption {
	return func(c *JwtTokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJwtTokenCodec creates a codec. The access and refresh secrets must be non-empty and different
// so that one cannot forge the other.
func NewJwtTokenCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*JwtTokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	c := &JwtTokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     DefaultAccessTokenExpiry,
		refreshTTL:    DefaultRefreshTokenExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueAccessToken implements TokenCodec.IssueAccessToken
func (c *JwtTokenCodec) IssueAccessToken(claims Claims) (string, time.Time, error) {
	return c.issue(claims, AccessTokenType, c.accessSecret, c.accessTTL)
}

// IssueRefreshToken implements TokenCodec.IssueRefreshToken
func (c *JwtTokenCodec) IssueRefreshToken(claims Claims) (string, time.Time, error) {
	return c.issue(claims, RefreshTokenType, c.refreshSecret, c.refreshTTL)
}

// VerifyAccessToken implements TokenCodec.VerifyAccessToken
func (c *JwtTokenCodec) VerifyAccessToken(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, AccessTokenType, c.accessSecret)
}

// VerifyRefreshToken implements TokenCodec.VerifyRefreshToken
func (c *JwtTokenCodec) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, RefreshTokenType, c.refreshSecret)
}

// IssuePair issues an access token and a refresh token for the same claims
func IssuePair(codec TokenCodec, claims Claims) (TokenPair, error) {
	access, accessExp, err := codec.IssueAccessToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := codec.IssueRefreshToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (c *JwtTokenCodec) issue(claims Claims, tokenType string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if claims.SubjectID == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := c.now().UTC()
	registered := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    c.issuer,
		Subject:   claims.SubjectID,
		ID:        uuid.New().String(),
	}
	if c.audience != "" {
		registered.Audience = jwt.ClaimStrings{c.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Email:            claims.Email,
		Role:             claims.Role,
		TokenType:        tokenType,
		RegisteredClaims: registered,
	})
	ss, err := token.SignedString(secret)
	if err != nil {
		slog.Error("Failed to sign token", "type", tokenType, "err", err)
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return ss, registered.ExpiresAt.Time, nil
}

// verify collapses every failure (malformed, expired, bad signature, wrong type) into TOKEN_INVALID.
func (c *JwtTokenCodec) verify(tokenStr, tokenType string, secret []byte) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(c.audience))
	}

	parsed := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, parsed, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, invalidToken(err)
	}
	if !token.Valid || parsed.TokenType != tokenType || parsed.Subject == "" {
		return nil, invalidToken(fmt.Errorf("unexpected %q token", parsed.TokenType))
	}

	claims := &Claims{
		SubjectID: parsed.Subject,
		Email:     parsed.Email,
		Role:      parsed.Role,
		TokenID:   parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}

func invalidToken(cause error) error {
	return apperrors.Wrap(cause, apperrors.ErrCodeTokenInvalid, "invalid token")
}
