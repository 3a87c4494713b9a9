package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Account store backends selectable with ACCOUNT_STORE
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full process configuration, read once at startup and passed down explicitly.
type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" env-default:":4000"`
	LogFormat    string `env:"LOG_FORMAT" env-default:"text"`
	AccountStore string `env:"ACCOUNT_STORE" env-default:"memory"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For and friends. Only enable it
	// behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" env-default:"false"`

	Security SecurityConfig
	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Email    EmailConfig
}

// Load reads the configuration from the environment and validates it
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section
func (c Config) Validate() error {
	return Validate(
		c.Security.Validate,
		c.JWT.Validate,
		func() ValidationErrors {
			switch c.AccountStore {
			case StoreMemory, StorePostgres, StoreRedis:
				return nil
			default:
				return ValidationErrors{{Field: "ACCOUNT_STORE", Message: fmt.Sprintf("unknown store %q", c.AccountStore)}}
			}
		},
	)
}
