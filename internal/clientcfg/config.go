// Package clientcfg holds the desktop client configuration.
package clientcfg

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultServerURL    = "http://127.0.0.1:8000"
	DefaultPollAttempts = 60
	DefaultPollInterval = 1
)

var (
	ErrMissingServerURL = errors.New("server_url is required")
	ErrInvalidPolling   = errors.New("poll_attempts must be positive and poll_interval_seconds non-negative")
)

// Config holds all client configuration.
type Config struct {
	ServerURL           string `toml:"server_url"`
	PollAttempts        int    `toml:"poll_attempts"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	UseKeyring          bool   `toml:"use_keyring"`
	// SessionFile defaults to session.toml next to the config file.
	SessionFile string `toml:"session_file"`
}

func Default() Config {
	return Config{
		ServerURL:           DefaultServerURL,
		PollAttempts:        DefaultPollAttempts,
		PollIntervalSeconds: DefaultPollInterval,
		UseKeyring:          true,
	}
}

// Dir is ~/.config/emsana.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "emsana")
}

// DefaultPath returns the default path for the client config file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// LoadFrom reads configuration from the given TOML file path.
// A missing file yields the defaults. Environment variables take precedence over file values:
//   - EMSANA_SERVER_URL overrides server_url
//   - EMSANA_POLL_ATTEMPTS overrides poll_attempts
//
// Validation is left to the caller so CLI flags can be applied first.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(filepath.Dir(path), "session.toml")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EMSANA_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("EMSANA_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMSANA_POLL_ATTEMPTS: %w", err)
		}
		cfg.PollAttempts = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if c.PollAttempts <= 0 || c.PollIntervalSeconds < 0 {
		return ErrInvalidPolling
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Save writes cfg to path with 0600 permissions, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
