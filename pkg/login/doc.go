// Package login provides password hashing and password strength checks.
//
// BcryptHasher stores self-describing bcrypt digests with a configurable cost:
//
//	hasher := login.NewBcryptHasher(12)
//	digest, err := hasher.Hash("P@ssw0rd1")
//	ok := hasher.Verify("P@ssw0rd1", digest)
//
// DefaultPasswordPolicyChecker enforces a minimum length and requires upper case, lower case,
// digit and special character classes. All classes are required; the policy is not scored.
package login
