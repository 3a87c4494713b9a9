package login

// PasswordHasher defines the interface for password hashing implementations
type PasswordHasher interface {
	// Hash hashes a password. The digest is self-describing (algorithm, cost and salt).
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. A malformed digest is a mismatch.
	Verify(password, digest string) bool
}
