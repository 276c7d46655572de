// Package config loads the gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/loadrelay/go-download-gateway/pkg/logging"
)

// Config represents the gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   logging.Config  `yaml:"logging" envconfig:"LOGGING"`
	Session   SessionConfig   `yaml:"session" envconfig:"SESSION"`
	CNL       CNLConfig       `yaml:"cnl" envconfig:"CNL"`
	Setup     SetupConfig     `yaml:"setup" envconfig:"SETUP"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP transport configuration. Backend selects the
// preferred server backend by name; ForceBackend overrides selection
// entirely, even when the named backend is unavailable.
type ServerConfig struct {
	Host         string `yaml:"host" envconfig:"HOST"`
	Port         int    `yaml:"port" envconfig:"PORT"`
	Backend      string `yaml:"backend" envconfig:"BACKEND"`
	ForceBackend string `yaml:"force_backend" envconfig:"FORCE_BACKEND"`
	Debug        bool   `yaml:"debug" envconfig:"DEBUG"`

	TLS TLSConfig `yaml:"tls" envconfig:"TLS"`

	// FCGISocket is the unix socket path for the fcgi backend. The fcgi
	// backend reports itself unavailable when this is empty.
	FCGISocket string `yaml:"fcgi_socket" envconfig:"FCGI_SOCKET"`
}

// TLSConfig contains the TLS material for backends that support it
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"ENABLED"`
	CertFile string `yaml:"cert_file" envconfig:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" envconfig:"KEY_FILE"`
}

// SessionConfig contains session store configuration
type SessionConfig struct {
	// Type is the session store type: "memory" or "redis"
	Type string `yaml:"type" envconfig:"TYPE"`
	// Redis contains Redis-specific configuration
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
	// TTLHours is the session lifetime in hours
	TTLHours int `yaml:"ttl_hours" envconfig:"TTL_HOURS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// CNLConfig configures the Click'n'Load container endpoints. These carry
// no authentication of their own, so they only answer callers on the
// loopback allow-list.
type CNLConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// AllowedHosts are Host header values accepted in addition to
	// loopback peer addresses.
	AllowedHosts []string `yaml:"allowed_hosts" envconfig:"ALLOWED_HOSTS"`
	// StorageDir is where encrypted container files (.dlc) are written
	// for the external decoder.
	StorageDir string `yaml:"storage_dir" envconfig:"STORAGE_DIR"`
}

// SetupConfig configures the first-run setup wizard endpoints
type SetupConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// TimeoutMinutes closes the wizard after this much inactivity
	TimeoutMinutes int `yaml:"timeout_minutes" envconfig:"TIMEOUT_MINUTES"`
}

// RateLimitConfig throttles login attempts per source address
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts   int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Missing file is fine, defaults plus env vars apply.
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process("GATEWAY", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8010,
		},
		Logging: logging.DefaultConfig(),
		Session: SessionConfig{
			Type:     "memory",
			TTLHours: 24,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "gw:session:",
			},
		},
		CNL: CNLConfig{
			Enabled: true,
			AllowedHosts: []string{
				"127.0.0.1:9666",
				"localhost:9666",
			},
			StorageDir: "downloads",
		},
		Setup: SetupConfig{
			TimeoutMinutes: 15,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxAttempts:   5,
			WindowSeconds: 60,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Session.Type != "memory" && c.Session.Type != "redis" {
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.Session.Type)
	}

	if c.Session.Type == "redis" && c.Session.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using the redis session store")
	}

	return nil
}

// Address returns the server bind address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
