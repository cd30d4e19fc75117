package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Relay is the kanban-relay configuration.
type Relay struct {
	Port                  int           `env:"RELAY_PORT" envDefault:"5000"`
	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	RedisChannelPrefix    string        `env:"REDIS_CHANNEL_PREFIX" envDefault:"board:"`
	DeduperTTL            time.Duration `env:"DEDUPER_TTL" envDefault:"10m"`
	Auth0Domain           string        `env:"AUTH0_DOMAIN"`
	Auth0Audience         string        `env:"AUTH0_AUDIENCE"`
	AuthTestMode          bool          `env:"AUTH_TEST_MODE"`
	TestJWTSecret         string        `env:"TEST_JWT_SECRET"`
	DevAPI                bool          `env:"DEV_API"`
	Debug                 bool          `env:"DEBUG"`
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() (*Relay, error) {
	r := &Relay{}
	if err := env.Parse(r); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that exactly one way of verifying tokens is configured.
func (r *Relay) Validate() error {
	if r.Port <= 0 {
		return fmt.Errorf("invalid RELAY_PORT: %d", r.Port)
	}
	if r.DeduperTTL <= 0 {
		return fmt.Errorf("invalid DEDUPER_TTL: %s", r.DeduperTTL)
	}
	if r.AuthTestMode {
		if r.TestJWTSecret == "" {
			return errors.New("missing TEST_JWT_SECRET")
		}
		return nil
	}
	if r.Auth0Domain == "" || r.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	if r.DevAPI {
		return errors.New("DEV_API requires AUTH_TEST_MODE")
	}
	return nil
}

// JWKSURL is the Auth0 key set location.
func (r *Relay) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", r.Auth0Domain)
}

// Issuer is the expected token issuer.
func (r *Relay) Issuer() string {
	return "https://" + r.Auth0Domain + "/"
}

// ListenAddr is the echo listen address.
func (r *Relay) ListenAddr() string {
	return fmt.Sprintf(":%d", r.Port)
}

// RedisOptions parses the connection string, accepting either a redis://
// URL or the "host:port,password=...,ssl=true" form. It returns nil when
// Redis is not configured.
func (r *Relay) RedisOptions() *redis.Options {
	if r.RedisConnectionString == "" {
		return nil
	}
	opts, err := redis.ParseURL(r.RedisConnectionString)
	if err == nil {
		return opts
	}
	parts := strings.Split(r.RedisConnectionString, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
