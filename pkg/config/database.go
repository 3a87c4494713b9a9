package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"PG_PORT" env-default:"5432"`
	Database string `env:"PG_DATABASE" env-default:"shop_auth"`
	User     string `env:"PG_USER" env-default:"shop"`
	Password string `env:"PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"PG_SCHEMA" env-default:"public"`
	SSLMode  string `env:"PG_SSLMODE" env-default:"disable"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Database, d.SSLMode, d.Schema)
}
