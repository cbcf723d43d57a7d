// Package config loads the gateway server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderSupabase = "supabase"
	ProviderGoogle   = "google"
)

// RateLimit is a token bucket policy: MaxRequests per WindowSeconds with Burst capacity.
type RateLimit struct {
	WindowSeconds int `env:"WINDOW_SECONDS" envDefault:"60"`
	MaxRequests   int `env:"MAX_REQUESTS"   envDefault:"20"`
	Burst         int `env:"BURST"          envDefault:"5"`
}

type Supabase struct {
	URL           string `env:"URL"`
	AnonKey       string `env:"ANON_KEY"`
	OAuthProvider string `env:"OAUTH_PROVIDER" envDefault:"google"`
	Flow          string `env:"FLOW"           envDefault:"pkce"`
}

type Google struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Issuer       string `env:"ISSUER" envDefault:"https://accounts.google.com"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	Key      string `env:"PENDING_KEY" envDefault:"emsana:pending_auth"`
}

// Config is the complete server configuration.
type Config struct {
	Env      string `env:"ENV"       envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPAddr  string `env:"HTTP_ADDR"  envDefault:"127.0.0.1:8000"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://127.0.0.1:8000"`

	IdentityProvider string   `env:"IDENTITY_PROVIDER" envDefault:"supabase"`
	Supabase         Supabase `envPrefix:"SUPABASE_"`
	Google           Google   `envPrefix:"GOOGLE_"`

	JWTSecret string        `env:"JWT_HS256_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"720h"`

	DatabaseURL string `env:"DATABASE_URL"`
	Redis       Redis  `envPrefix:"REDIS_"`

	PendingTTL    time.Duration `env:"PENDING_TTL" envDefault:"10m"`
	AuthRateLimit RateLimit     `envPrefix:"AUTH_RATE_LIMIT_"`
}

// Load reads a .env file when present, then parses the environment.
// Validation is left to Validate so callers can log the parsed values first.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &cfg, nil
}

// CallbackURL is the fixed local address the provider redirects back to.
func (c *Config) CallbackURL() string {
	return c.PublicURL + "/callback"
}

// IsDev reports whether console logging should be used.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// Validate checks that the selected provider is fully configured.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.PublicURL); err != nil {
		return fmt.Errorf("PUBLIC_URL: %w", err)
	}

	switch c.IdentityProvider {
	case ProviderSupabase:
		if c.Supabase.URL == "" {
			return errors.New("SUPABASE_URL is required")
		}
		if c.Supabase.AnonKey == "" {
			return errors.New("SUPABASE_ANON_KEY is required")
		}
		if c.Supabase.Flow != "pkce" && c.Supabase.Flow != "implicit" {
			return fmt.Errorf("SUPABASE_FLOW must be pkce or implicit, got %q", c.Supabase.Flow)
		}
	case ProviderGoogle:
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
		}
		if len(c.JWTSecret) < 16 {
			return errors.New("JWT_HS256_SECRET of at least 16 bytes is required for google sign-in")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be %s or %s, got %q", ProviderSupabase, ProviderGoogle, c.IdentityProvider)
	}

	if c.PendingTTL <= 0 {
		return errors.New("PENDING_TTL must be positive")
	}
	if c.AuthRateLimit.WindowSeconds <= 0 || c.AuthRateLimit.MaxRequests <= 0 || c.AuthRateLimit.Burst <= 0 {
		return errors.New("AUTH_RATE_LIMIT_* values must be positive")
	}
	return nil
}
