package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config models intake.yml.
type Config struct {
	Server struct {
		Addr       string `yaml:"addr" json:"addr"`
		BasePath   string `yaml:"base_path" json:"base_path"`
		TrustProxy bool   `yaml:"trust_proxy" json:"trust_proxy"`
	} `yaml:"server" json:"server"`
	Database struct {
		Driver    string `yaml:"driver" json:"driver"`
		DSN       string `yaml:"dsn" json:"dsn,omitempty"`
		Workspace string `yaml:"workspace" json:"workspace"`
	} `yaml:"database" json:"database"`
	Auth struct {
		APIKeys   []string `yaml:"api_keys" json:"-"`
		JWTSecret string   `yaml:"jwt_secret" json:"-"`
	} `yaml:"auth" json:"-"`
	RateLimit struct {
		Requests   int           `yaml:"requests" json:"requests"`
		Window     time.Duration `yaml:"window" json:"window"`
		MaxClients int           `yaml:"max_clients" json:"max_clients"`
	} `yaml:"rate_limit" json:"rate_limit"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "intake.yml")
}

// Load reads and validates config from path, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with intake config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	keys := 0
	for _, k := range c.Auth.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("config.auth.api_keys contains an empty key")
		}
		keys++
	}
	if keys == 0 && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config.auth needs at least one api key or a jwt secret")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("config.rate_limit.requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config.rate_limit.window must be positive")
	}
	if c.RateLimit.MaxClients < 0 {
		return fmt.Errorf("config.rate_limit.max_clients must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	return nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  # take client IPs from X-Forwarded-For; only behind a trusted proxy
  trust_proxy: false

database:
  driver: sqlite
  dsn: ""
  workspace: .

auth:
  api_keys: [dev-key]
  jwt_secret: ""

rate_limit:
  requests: 100
  window: 15m
  max_clients: 10000

log:
  level: info
  format: json
`
