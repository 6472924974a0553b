package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment selects which backend base URL is used.
type Environment string

const (
	Local  Environment = "local"
	Hosted Environment = "hosted"
)

// Config represents the global ~/.wlite/config.toml.
type Config struct {
	DefaultProfile string      `toml:"default_profile"`
	Environment    Environment `toml:"environment"`
	API            APIConfig   `toml:"api"`
	Sync           SyncConfig  `toml:"sync"`
	Realtime       RTConfig    `toml:"realtime"`
}

// APIConfig configures the remote store client.
type APIConfig struct {
	LocalURL        string   `toml:"local_url"`
	HostedURL       string   `toml:"hosted_url"`
	Timeout         Duration `toml:"timeout"`
	RatePerSecond   float64  `toml:"rate_per_second"`
	BreakerFailures uint32   `toml:"breaker_failures"`
	BreakerCooldown Duration `toml:"breaker_cooldown"`
}

// SyncConfig configures the polling loops.
type SyncConfig struct {
	PollInterval   Duration `toml:"poll_interval"`
	StatusInterval Duration `toml:"status_interval"`
	CycleTimeout   Duration `toml:"cycle_timeout"`
}

// RTConfig configures the optional websocket channel. Empty URL disables it.
type RTConfig struct {
	URL                  string   `toml:"url"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectDelay       Duration `toml:"reconnect_delay"`
}

// Duration is a time.Duration that reads "3s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Environment:    Local,
		API: APIConfig{
			LocalURL:        "http://localhost:3000",
			HostedURL:       "https://serveur2.onrender.com",
			Timeout:         Duration{10 * time.Second},
			RatePerSecond:   20,
			BreakerFailures: 5,
			BreakerCooldown: Duration{15 * time.Second},
		},
		Sync: SyncConfig{
			PollInterval:   Duration{3 * time.Second},
			StatusInterval: Duration{30 * time.Second},
			CycleTimeout:   Duration{10 * time.Second},
		},
		Realtime: RTConfig{
			MaxReconnectAttempts: 5,
			ReconnectDelay:       Duration{time.Second},
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads an optional .env file next to the working directory and
// applies WLITE_* overrides.
func (c *Config) ApplyEnv() error {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	if v := os.Getenv("WLITE_ENV"); v != "" {
		c.Environment = Environment(v)
	}
	if v := os.Getenv("WLITE_API_URL"); v != "" {
		switch c.Environment {
		case Hosted:
			c.API.HostedURL = v
		default:
			c.API.LocalURL = v
		}
	}
	if v := os.Getenv("WLITE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WLITE_POLL_INTERVAL: %w", err)
		}
		c.Sync.PollInterval = Duration{d}
	}
	return c.Validate()
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	switch c.Environment {
	case Local, Hosted:
	default:
		return fmt.Errorf("unknown environment %q (want local or hosted)", c.Environment)
	}
	if c.BaseURL() == "" {
		return fmt.Errorf("no API url configured for environment %q", c.Environment)
	}
	if c.Sync.PollInterval.Duration <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	return nil
}

// BaseURL returns the backend URL for the selected environment.
func (c *Config) BaseURL() string {
	if c.Environment == Hosted {
		return c.API.HostedURL
	}
	return c.API.LocalURL
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
