package api

import (
	"github.com/prometheus/client_golang/prometheus"
	apperrors "github.com/tendant/shop-auth/pkg/errors"
)

// Security event labels
const (
	EventInvalidCredentials = "invalid_credentials"
	EventAccountLocked      = "account_locked"
	EventInvalidTwoFactor   = "invalid_two_factor"
	EventInvalidToken       = "invalid_token"
	EventLoginSucceeded     = "login_succeeded"
	EventPasswordReset      = "password_reset"
)

// Metrics holds the security event counter. Use NewMetrics to register it.
type Metrics struct {
	SecurityEvents *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopauth_security_events_total",
				Help: "Total number of security relevant authentication events",
			},
			[]string{"event"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.SecurityEvents)
	}
	return m
}

// Record increments the counter for event
func (m *Metrics) Record(event string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(event).Inc()
}

// eventForCode maps an error code to a security event, or "" when the failure is not one.
func eventForCode(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.ErrCodeInvalidCredentials:
		return EventInvalidCredentials
	case apperrors.ErrCodeAccountLocked:
		return EventAccountLocked
	case apperrors.ErrCode2FAInvalid:
		return EventInvalidTwoFactor
	case apperrors.ErrCodeTokenInvalid:
		return EventInvalidToken
	default:
		return ""
	}
}
