// Package twofa generates TOTP secrets for authenticator apps and checks the codes they produce.
//
// Codes are six digits on a 30 second step. VerifyCode accepts codes from a window of steps around
// the current one (two by default) to absorb clock drift between the server and the device.
//
//	gen := twofa.NewGenerator(twofa.WithIssuer("shop"))
//	enrollment, err := gen.GenerateTotpSecret("alice@example.com")
//	ok := gen.VerifyCode(enrollment.Secret, "123456")
package twofa
