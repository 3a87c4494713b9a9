package accountsecurity

import (
	"github.com/tendant/shop-auth/pkg/account"
	"github.com/tendant/shop-auth/pkg/tokengenerator"
)

type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Phone    string
	// Role defaults to customer
	Role string
}

type LoginParams struct {
	Email         string
	Password      string
	TwoFactorCode string
	ClientIP      string
}

// LoginResult is returned by a successful Login
type LoginResult struct {
	Account account.PublicAccount `json:"account"`
	tokengenerator.TokenPair
}

// Messages returned by the anti-enumeration operations regardless of whether the account exists
const (
	PasswordResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."
	VerificationResentMessage     = "If an unverified account with that email exists, a verification link has been sent."
)
