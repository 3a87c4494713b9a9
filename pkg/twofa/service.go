package twofa

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/shop-auth/pkg/utils"
)

const (
	DefaultIssuer      = "shop-auth"
	DefaultWindowSteps = 2
	// Period is the TOTP time step in seconds.
	Period = 30
)

// Enrollment is what an authenticator app needs to start producing codes
type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// Generator produces one-time secrets: opaque tokens for email links and TOTP secrets and codes.
type Generator struct {
	issuer      string
	windowSteps uint
	now         func() time.Time
}

type Option func(*Generator)

func WithIssuer(issuer string) Option {
	return func(g *Generator) {
		if issuer != "" {
			g.issuer = issuer
		}
	}
}

// WithWindowSteps sets how many 30s steps before and after the current one are accepted.
func WithWindowSteps(steps uint) Option {
	return func(g *Generator) {
		g.windowSteps = steps
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		issuer:      DefaultIssuer,
		windowSteps: DefaultWindowSteps,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RandomOpaqueToken returns a 64 character hex token for verification and reset links.
func (g *Generator) RandomOpaqueToken() (string, error) {
	return utils.GenerateOpaqueToken()
}

// GenerateTotpSecret creates a base32 secret and an otpauth:// URI labelled with label.
func (g *Generator) GenerateTotpSecret(label string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: label,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "issuer", g.issuer, "error", err)
		return Enrollment{}, fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// CurrentCode returns the 6-digit code for the current time step.
func (g *Generator) CurrentCode(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, g.now().UTC(), g.validateOpts())
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}

// VerifyCode reports whether code is valid for secret within the configured window.
// Malformed codes and secrets are reported as invalid.
func (g *Generator) VerifyCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, g.now().UTC(), g.validateOpts())
	if err != nil {
		slog.Debug("Rejected totp code", "error", err)
		return false
	}
	return valid
}

func (g *Generator) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      g.windowSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
