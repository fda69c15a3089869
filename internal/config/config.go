// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Run modes.
const (
	ModeStandalone = "standalone"
	ModeEmbedded   = "embedded"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port int    `env:"PORT" envDefault:"5000"`
	Addr string `env:"ADDR"`
	Mode string `env:"MODE" envDefault:"standalone"`

	Store       string `env:"STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost/tensiometer?sslmode=disable"`
	MongoURI    string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/tensiometer"`

	CORSOrigin       string        `env:"CORS_ORIGIN" envDefault:"*"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TrustForwardAuth bool          `env:"TRUST_FORWARD_AUTH" envDefault:"false"`

	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values outside their enumerations.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q: want postgres, mongo or memory", c.Store)
	}
	switch c.Mode {
	case ModeStandalone, ModeEmbedded:
	default:
		return fmt.Errorf("unknown MODE %q: want standalone or embedded", c.Mode)
	}
	if c.Addr == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// ListenAddr returns ADDR when set, otherwise ":PORT".
func (c *Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return fmt.Sprintf(":%d", c.Port)
}

// SSOEnabled reports whether enough OIDC settings are present to try discovery.
func (c *Config) SSOEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}
