package config

import (
	"net/http"
	"time"

	"github.com/tendant/shop-auth/pkg/tokengenerator"
)

// JWTConfig holds token signing configuration. The two secrets must differ.
type JWTConfig struct {
	AccessSecret   string `env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret  string `env:"JWT_REFRESH_SECRET" env-required:"true"`
	Issuer         string `env:"JWT_ISSUER" env-default:"shop-auth"`
	Audience       string `env:"JWT_AUDIENCE" env-default:"shop"`
	CookieHttpOnly bool   `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool   `env:"COOKIE_SECURE" env-default:"true"`
}

// Validate checks the secrets
func (j JWTConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	if j.AccessSecret == "" {
		errs = append(errs, ValidationError{Field: "JWT_ACCESS_SECRET", Message: "is required"})
	}
	if j.RefreshSecret == "" {
		errs = append(errs, ValidationError{Field: "JWT_REFRESH_SECRET", Message: "is required"})
	}
	if j.AccessSecret != "" && j.AccessSecret == j.RefreshSecret {
		errs = append(errs, ValidationError{Field: "JWT_REFRESH_SECRET", Message: "must differ from JWT_ACCESS_SECRET"})
	}
	return errs
}

// CookieSameSite returns the appropriate SameSite setting based on CookieSecure
func (j JWTConfig) CookieSameSite() http.SameSite {
	if j.CookieSecure {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// NewCookieSetter returns the cookie setter used for token cookies
func (j JWTConfig) NewCookieSetter() tokengenerator.CookieSetter {
	return &tokengenerator.BaseCookieSetter{
		Path:     "/",
		HttpOnly: j.CookieHttpOnly,
		Secure:   j.CookieSecure,
		SameSite: j.CookieSameSite(),
	}
}

// NewTokenCodec builds the access and refresh token codec
func (j JWTConfig) NewTokenCodec(sec SecurityConfig, now func() time.Time) (*tokengenerator.JwtTokenCodec, error) {
	d, err := sec.Durations()
	if err != nil {
		return nil, err
	}
	return tokengenerator.NewJwtTokenCodec(j.AccessSecret, j.RefreshSecret,
		tokengenerator.WithIssuer(j.Issuer),
		tokengenerator.WithAudience(j.Audience),
		tokengenerator.WithAccessTokenExpiry(d.AccessTokenTTL),
		tokengenerator.WithRefreshTokenExpiry(d.RefreshTokenTTL),
		tokengenerator.WithClock(now),
	)
}
