// Package accountsecurity implements the account security state machine: registration, login with
// lockout and optional TOTP, refresh token rotation, email verification, password reset and
// two-factor enrollment.
//
// The Service keeps no state between calls. Every change to an account is a compare-and-set save
// through account.Repository, retried a few times when a concurrent writer wins.
//
// Basic usage:
//
//	svc := accountsecurity.NewService(repo, login.NewBcryptHasher(12), codec, twofa.NewGenerator(), notifier)
//	result, err := svc.Login(ctx, accountsecurity.LoginParams{Email: email, Password: password})
//	if apperrors.IsCode(err, apperrors.ErrCode2FARequired) {
//		// ask for a TOTP code and call Login again
//	}
package accountsecurity
