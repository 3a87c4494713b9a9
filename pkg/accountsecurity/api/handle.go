package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/tendant/shop-auth/pkg/accountsecurity"
	apperrors "github.com/tendant/shop-auth/pkg/errors"
	"github.com/tendant/shop-auth/pkg/tokengenerator"
)

type claimsContextKey struct{}

// Handle serves the account security operations over HTTP
type Handle struct {
	service *accountsecurity.Service
	cookies tokengenerator.CookieSetter
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Handle)

// WithCookieSetter makes login and refresh also deliver tokens as cookies
func WithCookieSetter(cs tokengenerator.CookieSetter) Option {
	return func(h *Handle) {
		h.cookies = cs
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Handle) {
		h.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandle(service *accountsecurity.Service, opts ...Option) *Handle {
	h := &Handle{
		service: service,
		logger:  slog.Default().With("component", "accountsecurity.api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the /auth prefix
func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/verify-email", h.VerifyEmail)
	r.Post("/verify-email/resend", h.ResendVerification)
	r.Post("/password/forgot", h.ForgotPassword)
	r.Post("/password/reset", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAccessToken)
		r.Get("/me", h.Me)
		r.Post("/logout", h.Logout)
		r.Post("/password/change", h.ChangePassword)
		r.Post("/2fa/setup", h.Setup2FA)
		r.Post("/2fa/enable", h.Enable2FA)
		r.Post("/2fa/disable", h.Disable2FA)
	})

	return r
}

// RequireAccessToken accepts a bearer header or the access_token cookie and stores the verified
// claims in the request context.
func (h *Handle) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := jwtauth.TokenFromHeader(r)
		if token == "" {
			token = tokenFromCookie(r)
		}
		if token == "" {
			h.renderError(w, r, "authenticate", apperrors.New(apperrors.ErrCodeTokenInvalid, "missing access token"))
			return
		}

		claims, err := h.service.VerifyAccessToken(r.Context(), token)
		if err != nil {
			h.renderError(w, r, "authenticate", err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by RequireAccessToken
func ClaimsFromContext(ctx context.Context) (*tokengenerator.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*tokengenerator.Claims)
	return claims, ok && claims != nil
}

func tokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(tokengenerator.AccessTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Register handles POST /register
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.service.Register(r.Context(), accountsecurity.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		h.renderError(w, r, "register", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AccountResponse{Account: acc})
}

// Login handles POST /login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), accountsecurity.LoginParams{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		ClientIP:      clientIP(r),
	})
	if err != nil {
		h.renderError(w, r, "login", err)
		return
	}

	h.metrics.Record(EventLoginSucceeded)
	if h.cookies != nil {
		tokengenerator.SetTokenPairCookies(h.cookies, w, result.TokenPair)
	}
	render.JSON(w, r, result)
}

// Refresh handles POST /refresh
func (h *Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	// an empty body is allowed when the token travels as a cookie
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("Failed to decode request body", "path", r.URL.Path, "err", err)
		h.renderError(w, r, "decode", apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	token := req.RefreshToken
	if token == "" {
		if cookie, err := r.Cookie(tokengenerator.RefreshTokenCookieName); err == nil {
			token = cookie.Value
		}
	}

	pair, err := h.service.RefreshAccessToken(r.Context(), token)
	if err != nil {
		h.renderError(w, r, "refresh", err)
		return
	}

	if h.cookies != nil {
		tokengenerator.SetTokenPairCookies(h.cookies, w, pair)
	}
	render.JSON(w, r, pair)
}

// Logout handles POST /logout
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if err := h.service.Logout(r.Context(), claims.SubjectID); err != nil {
		h.renderError(w, r, "logout", err)
		return
	}

	if h.cookies != nil {
		tokengenerator.ClearTokenCookies(h.cookies, w)
	}
	render.JSON(w, r, MessageResponse{Message: "Logged out"})
}

// VerifyEmail handles POST /verify-email
func (h *Handle) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.renderError(w, r, "verify_email", err)
		return
	}
	render.JSON(w, r, AccountResponse{Account: acc})
}

// ResendVerification handles POST /verify-email/resend
func (h *Handle) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		h.renderError(w, r, "resend_verification", err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: msg})
}

// ForgotPassword handles POST /password/forgot
func (h *Handle) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.renderError(w, r, "request_password_reset", err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: msg})
}

// ResetPassword handles POST /password/reset
func (h *Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.renderError(w, r, "reset_password", err)
		return
	}

	h.metrics.Record(EventPasswordReset)
	render.JSON(w, r, MessageResponse{Message: "Password has been reset"})
}

// ChangePassword handles POST /password/change
func (h *Handle) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		h.renderError(w, r, "change_password", err)
		return
	}

	if h.cookies != nil {
		tokengenerator.ClearTokenCookies(h.cookies, w)
	}
	render.JSON(w, r, MessageResponse{Message: "Password changed"})
}

// Me handles GET /me
func (h *Handle) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	acc, err := h.service.GetAccount(r.Context(), claims.SubjectID)
	if err != nil {
		h.renderError(w, r, "get_account", err)
		return
	}
	render.JSON(w, r, AccountResponse{Account: acc})
}

// Setup2FA handles POST /2fa/setup
func (h *Handle) Setup2FA(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	enrollment, err := h.service.Setup2FA(r.Context(), claims.SubjectID)
	if err != nil {
		h.renderError(w, r, "setup_2fa", err)
		return
	}
	render.JSON(w, r, enrollment)
}

// Enable2FA handles POST /2fa/enable
func (h *Handle) Enable2FA(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req TwoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Enable2FA(r.Context(), claims.SubjectID, req.Code); err != nil {
		h.renderError(w, r, "enable_2fa", err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication enabled"})
}

// Disable2FA handles POST /2fa/disable
func (h *Handle) Disable2FA(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req PasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Disable2FA(r.Context(), claims.SubjectID, req.Password); err != nil {
		h.renderError(w, r, "disable_2fa", err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Two-factor authentication disabled"})
}

func (h *Handle) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		h.logger.Debug("Failed to decode request body", "path", r.URL.Path, "err", err)
		h.renderError(w, r, "decode", apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// renderError writes the {"code","message"} body. Security failures are counted and logged at
// Warn; the wrapped cause of an error never reaches the client.
func (h *Handle) renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := apperrors.GetCode(err)

	if event := eventForCode(code); event != "" {
		h.metrics.Record(event)
		h.logger.Warn("Security failure", "op", op, "code", code, "client_ip", clientIP(r))
	}
	if code == apperrors.ErrCodeAccountLocked {
		if minutes, ok := apperrors.GetDetails(err)["retry_after_minutes"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
		}
	}

	render.Status(r, apperrors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, ErrorResponse{Code: string(code), Message: apperrors.PublicMessage(err)})
}

// clientIP is the host part of the connection address. Forwarding headers are not read here; mount
// the router behind middleware.RealIP when a trusted proxy sets them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
