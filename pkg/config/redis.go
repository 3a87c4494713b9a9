package config

import "github.com/redis/go-redis/v9"

// RedisConfig holds the connection used by the Redis account store
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"shopauth"`
}

// ToOptions converts the config to go-redis client options
func (r RedisConfig) ToOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}
