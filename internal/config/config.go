// Package config loads server configuration for the KumoRFM MCP server.
//
// Configuration is environment-first: KUMO_* variables always win. An optional
// YAML file under the XDG config home supplies defaults for values that rarely
// change per invocation (timeouts, preview limits), and a .env file in the
// working directory is honored for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kumorfm/internal/logging"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const appName = "kumo-rfm-mcp" // application name used for the config directory

// DefaultAPIURL is used when KUMO_API_URL is not set.
const DefaultAPIURL = "https://kumorfm.ai/api"

// Config holds all settings for the server process.
type Config struct {
	// APIKey authenticates against the KumoRFM service. May be empty, in
	// which case the session falls back to the OS keyring or an OAuth flow.
	APIKey string `envconfig:"KUMO_API_KEY" yaml:"-"`

	// APIURL is the base URL of the KumoRFM service.
	APIURL string `envconfig:"KUMO_API_URL" yaml:"api_url"`

	// OAuthClientID identifies this server to the KumoRFM OAuth endpoint.
	OAuthClientID string `envconfig:"KUMO_OAUTH_CLIENT_ID" yaml:"oauth_client_id"`

	// AuthTimeout bounds how long an interactive OAuth flow may stay pending.
	AuthTimeout time.Duration `envconfig:"KUMO_AUTH_TIMEOUT" yaml:"auth_timeout"`

	// RequestTimeout bounds individual predict/evaluate calls.
	RequestTimeout time.Duration `envconfig:"KUMO_REQUEST_TIMEOUT" yaml:"request_timeout"`

	// MaxPreviewRows caps the number of rows returned by file inspection.
	MaxPreviewRows int `envconfig:"KUMO_MAX_PREVIEW_ROWS" yaml:"max_preview_rows"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		OAuthClientID:  "kumo-rfm-mcp",
		AuthTimeout:    2 * time.Minute,
		RequestTimeout: 5 * time.Minute,
		MaxPreviewRows: 1000,
	}
}

// ConfigPath returns the standard config file path for the current platform.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// Load builds the effective configuration: defaults, then the optional YAML
// file, then a .env file if present, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	path := ConfigPath()
	if err := loadFile(&cfg, path); err != nil {
		return nil, err
	}

	// .env is optional; missing files are fine
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded .env file")
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		logging.Warn("KUMO_API_KEY not set, authentication deferred to keyring or OAuth")
	}
	if os.Getenv("KUMO_API_URL") == "" && cfg.APIURL == DefaultAPIURL {
		logging.Debug("KUMO_API_URL not set, using default", "url", DefaultAPIURL)
	}

	return &cfg, nil
}

// loadFile merges the YAML config file into cfg. A missing file is not an error.
func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	logging.Debug("Loading config file", "path", path)

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url cannot be empty")
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("auth_timeout must be positive, got %s", c.AuthTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxPreviewRows < 1 {
		return fmt.Errorf("max_preview_rows must be at least 1, got %d", c.MaxPreviewRows)
	}
	return nil
}

// Save writes the file-backed portion of the config to the standard location.
// Used by tests and first-run tooling; the API key is never written to disk.
func (c *Config) Save() error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
