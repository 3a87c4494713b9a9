package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/shop-auth/pkg/account"
	"github.com/tendant/shop-auth/pkg/accountsecurity"
	"github.com/tendant/shop-auth/pkg/login"
	"github.com/tendant/shop-auth/pkg/notification"
	"github.com/tendant/shop-auth/pkg/tokengenerator"
	"github.com/tendant/shop-auth/pkg/twofa"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "P@ssw0rd1"
)

type testServer struct {
	router   http.Handler
	notifier *notification.MockNotifier
	metrics  *Metrics
	totp     *twofa.Generator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	codec, err := tokengenerator.NewJwtTokenCodec("access-secret", "refresh-secret")
	require.NoError(t, err)

	notifier := &notification.MockNotifier{}
	totp := twofa.NewGenerator()
	svc := accountsecurity.NewService(account.NewInMemoryRepository(), login.NewBcryptHasher(bcrypt.MinCost), codec, totp, notifier)
	metrics := NewMetrics(prometheus.NewRegistry())

	h := NewHandle(svc, WithMetrics(metrics), WithCookieSetter(tokengenerator.NewCookieSetter(true, false)))
	r := chi.NewRouter()
	r.Mount("/auth", h.Routes())

	return &testServer{router: r, notifier: notifier, metrics: metrics, totp: totp}
}

func (s *testServer) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func (s *testServer) register(t *testing.T) {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{Email: testEmail, Name: "Alice", Password: testPassword})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *testServer) login(t *testing.T) tokengenerator.TokenPair {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pair tokengenerator.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))
	return pair
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{Email: testEmail, Name: "Alice", Password: testPassword})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created AccountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, testEmail, created.Account.Email)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = s.do(t, http.MethodPost, "/auth/register", RegisterRequest{Email: testEmail, Name: "Alice", Password: testPassword})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rr).Code)

	rr = s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, rr.Code)

	var result struct {
		Account      account.PublicAccount `json:"account"`
		AccessToken  string                `json:"access_token"`
		RefreshToken string                `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, testEmail, result.Account.Email)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	cookies := map[string]string{}
	for _, c := range rr.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	assert.Equal(t, result.AccessToken, cookies[tokengenerator.AccessTokenCookieName])
	assert.Equal(t, result.RefreshToken, cookies[tokengenerator.RefreshTokenCookieName])
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.SecurityEvents.WithLabelValues(EventLoginSucceeded)))
}

func TestRequireAccessToken(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	pair := s.login(t)

	t.Run("bearer header", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/auth/me", nil, bearer(pair.AccessToken))
		require.Equal(t, http.StatusOK, rr.Code)
		var resp AccountResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, testEmail, resp.Account.Email)
	})

	t.Run("cookie", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: tokengenerator.AccessTokenCookieName, Value: pair.AccessToken})
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "TOKEN_INVALID", decodeError(t, rr).Code)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/auth/me", nil, bearer(pair.RefreshToken))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	for i := 0; i < accountsecurity.DefaultMaxLoginAttempts; i++ {
		rr := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: "Wr0ng!pass"})
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		resp := decodeError(t, rr)
		assert.Equal(t, "INVALID_CREDENTIALS", resp.Code)
		assert.Equal(t, "invalid email or password", resp.Message)
	}

	rr := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: testPassword})
	assert.Equal(t, http.StatusLocked, rr.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", decodeError(t, rr).Code)
	assert.Equal(t, "900", rr.Header().Get("Retry-After"))

	assert.Equal(t, float64(accountsecurity.DefaultMaxLoginAttempts), testutil.ToFloat64(s.metrics.SecurityEvents.WithLabelValues(EventInvalidCredentials)))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.SecurityEvents.WithLabelValues(EventAccountLocked)))
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rr).Code)

	t.Run("refresh does not fall back to the cookie", func(t *testing.T) {
		s := newTestServer(t)
		s.register(t)
		pair := s.login(t)

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString("{not json"))
		req.AddCookie(&http.Cookie{Name: tokengenerator.RefreshTokenCookieName, Value: pair.RefreshToken})
		rr := httptest.NewRecorder()
		s.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rr).Code)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	first := s.login(t)

	rr := s.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code)
	var second tokengenerator.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rr = s.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.SecurityEvents.WithLabelValues(EventInvalidToken)))

	rr = s.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: tokengenerator.RefreshTokenCookieName, Value: second.RefreshToken})
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var third tokengenerator.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &third))

	rr = s.do(t, http.MethodPost, "/auth/logout", nil, bearer(third.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	for _, c := range rr.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}

	rr = s.do(t, http.MethodPost, "/auth/logout", nil, bearer(third.AccessToken))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: third.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEmailVerification(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	token, ok := s.notifier.LastToken(notification.VerifyEmailNotification, testEmail)
	require.True(t, ok)

	rr := s.do(t, http.MethodPost, "/auth/verify-email/resend", EmailRequest{Email: "nobody@example.com"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/verify-email", TokenRequest{Token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Account.EmailVerified)

	rr = s.do(t, http.MethodPost, "/auth/verify-email", TokenRequest{Token: token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "TOKEN_INVALID_OR_EXPIRED", decodeError(t, rr).Code)
}

func TestPasswordFlows(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	unknown := s.do(t, http.MethodPost, "/auth/password/forgot", EmailRequest{Email: "nobody@example.com"})
	known := s.do(t, http.MethodPost, "/auth/password/forgot", EmailRequest{Email: testEmail})
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, unknown.Body.String(), known.Body.String())

	token, ok := s.notifier.LastToken(notification.PasswordResetNotification, testEmail)
	require.True(t, ok)

	rr := s.do(t, http.MethodPost, "/auth/password/reset", ResetPasswordRequest{Token: token, NewPassword: "weak"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_PASSWORD", decodeError(t, rr).Code)

	rr = s.do(t, http.MethodPost, "/auth/password/reset", ResetPasswordRequest{Token: token, NewPassword: "N3w!Passw0rd"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: "N3w!Passw0rd"})
	require.Equal(t, http.StatusOK, rr.Code)
	var pair tokengenerator.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))

	rr = s.do(t, http.MethodPost, "/auth/password/change",
		ChangePasswordRequest{CurrentPassword: "N3w!Passw0rd", NewPassword: testPassword}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	s.login(t)
}

func TestTwoFactorEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	pair := s.login(t)

	rr := s.do(t, http.MethodPost, "/auth/2fa/setup", nil, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var enrollment twofa.Enrollment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &enrollment))
	require.NotEmpty(t, enrollment.Secret)

	code, err := s.totp.CurrentCode(enrollment.Secret)
	require.NoError(t, err)
	rr = s.do(t, http.MethodPost, "/auth/2fa/enable", TwoFactorCodeRequest{Code: code}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "TWO_FA_REQUIRED", decodeError(t, rr).Code)

	rr = s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: testEmail, Password: testPassword, TwoFactorCode: code})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/2fa/disable", PasswordRequest{Password: "Wr0ng!pass"}, bearer(pair.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/2fa/disable", PasswordRequest{Password: testPassword}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	s.login(t)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "198.51.100.4", clientIP(req), "forwarding headers are ignored without RealIP")

	var seen string
	h := middleware.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = clientIP(r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(req))
}
