package tokengenerator

import (
	"net/http"
	"time"
)

// Cookie names used when tokens are delivered as cookies
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
)

// CookieSetter writes token cookies on a response
type CookieSetter interface {
	// SetCookie sets a cookie with the given value and expiry
	SetCookie(w http.ResponseWriter, name, value string, expire time.Time)

	// ClearCookie clears a cookie
	ClearCookie(w http.ResponseWriter, name string)
}

// BaseCookieSetter provides a base implementation of CookieSetter
type BaseCookieSetter struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// SetCookie sets a cookie with the given value and expiry
func (c *BaseCookieSetter) SetCookie(w http.ResponseWriter, name, value string, expire time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    value,
		Expires:  expire,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// ClearCookie clears a cookie
func (c *BaseCookieSetter) ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// NewCookieSetter creates a new cookie setter scoped to "/"
func NewCookieSetter(httpOnly, secure bool) CookieSetter {
	return &BaseCookieSetter{
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetTokenPairCookies writes both tokens of pair as cookies
func SetTokenPairCookies(cs CookieSetter, w http.ResponseWriter, pair TokenPair) {
	cs.SetCookie(w, AccessTokenCookieName, pair.AccessToken, pair.AccessTokenExpiresAt)
	cs.SetCookie(w, RefreshTokenCookieName, pair.RefreshToken, pair.RefreshTokenExpiresAt)
}

// ClearTokenCookies expires both token cookies
func ClearTokenCookies(cs CookieSetter, w http.ResponseWriter) {
	cs.ClearCookie(w, AccessTokenCookieName)
	cs.ClearCookie(w, RefreshTokenCookieName)
}
