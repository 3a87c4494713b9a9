// Package utils holds small helpers shared by the account packages: opaque token generation,
// token digests, email normalization and nullable string conversion.
package utils
