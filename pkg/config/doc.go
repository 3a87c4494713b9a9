// Package config reads process configuration from environment variables with cleanenv.
//
// Durations accept Go syntax ("15m"), ISO 8601 ("P7D") or a number of days ("7d"). The security
// options and their defaults:
//
//	ACCESS_TOKEN_TTL=15m
//	REFRESH_TOKEN_TTL=7d
//	MAX_LOGIN_ATTEMPTS=5
//	LOCK_DURATION=15m
//	PASSWORD_MIN_LENGTH=8
//	HASH_COST=12
//	RESET_TOKEN_TTL=1h
//	VERIFICATION_TOKEN_TTL=24h
//	TOTP_WINDOW_STEPS=2
//
// JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required and must differ.
package config
