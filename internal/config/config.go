package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/storage"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel      = "gemma3:1b"
	DefaultPrecontext = "clientResponder"

	EnvDomain     = "MODELER_DOMAIN"
	EnvModel      = "MODELER_MODEL"
	EnvPrecontext = "MODELER_PRECONTEXT"
)

// Config holds all modeler configuration.
type Config struct {
	Dev bool `yaml:"dev"`

	Log LogConfig `yaml:"log"`

	// EnvFile is a dotenv file read before credentials are looked up.
	EnvFile string `yaml:"env_file"`

	Endpoint EndpointConfig `yaml:"endpoint"`

	Model      string `yaml:"model"`
	Precontext string `yaml:"precontext"`

	Auth AuthConfig `yaml:"auth"`

	Transport TransportConfig `yaml:"transport"`

	Storage storage.Config `yaml:"storage"`
}

type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

type EndpointConfig struct {
	// Domain is the API origin, with or without a scheme.
	Domain    string `yaml:"domain"`
	Namespace string `yaml:"namespace"`
	Version   string `yaml:"version"`
}

type AuthConfig struct {
	EnvVar string             `yaml:"env_var"`
	Scheme credentials.Scheme `yaml:"scheme"`
}

type TransportConfig struct {
	ConnectTimeout string `yaml:"connect_timeout"`
	HeaderTimeout  string `yaml:"header_timeout"`
	MaxRetries     int    `yaml:"max_retries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := defaultDir()
	home, _ := os.UserHomeDir()

	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		EnvFile: filepath.Join(home, "dotfiles", ".vars.zsh"),
		Endpoint: EndpointConfig{
			Namespace: client.DefaultNamespace,
			Version:   client.DefaultVersion,
		},
		Model:      DefaultModel,
		Precontext: DefaultPrecontext,
		Auth: AuthConfig{
			EnvVar: credentials.DefaultEnvVar,
			Scheme: credentials.SchemeAPIKey,
		},
		Transport: TransportConfig{
			ConnectTimeout: "30s",
			HeaderTimeout:  "60s",
		},
		Storage: storage.Config{
			Backend: storage.BackendFile,
			Dir:     filepath.Join(dir, "transcripts"),
		},
	}
}

// DefaultPath is ~/.config/modeler/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".modeler"
	}
	return filepath.Join(dir, "modeler")
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperr.Configuration("failed to parse config "+path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDomain); v != "" {
		c.Endpoint.Domain = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v, ok := os.LookupEnv(EnvPrecontext); ok {
		c.Precontext = v
	}
}

func (c *Config) ConnectTimeout() time.Duration {
	return duration(c.Transport.ConnectTimeout, 30*time.Second)
}

func (c *Config) HeaderTimeout() time.Duration {
	return duration(c.Transport.HeaderTimeout, 60*time.Second)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate reports the first configuration problem as a configuration error.
// The domain is only required by commands that talk to the API; see
// ValidateEndpoint.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return apperr.Configuration("model is empty", nil)
	}
	switch c.Auth.Scheme {
	case credentials.SchemeAPIKey, credentials.SchemeBearer:
	default:
		return apperr.Configuration(fmt.Sprintf("invalid auth scheme: %s (valid: %s, %s)",
			c.Auth.Scheme, credentials.SchemeAPIKey, credentials.SchemeBearer), nil)
	}
	for name, v := range map[string]string{
		"connect_timeout": c.Transport.ConnectTimeout,
		"header_timeout":  c.Transport.HeaderTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return apperr.Configuration("invalid transport."+name, err)
		}
	}
	if c.Transport.MaxRetries < 0 {
		return apperr.Configuration("transport.max_retries must not be negative", nil)
	}
	switch c.Storage.Backend {
	case "", storage.BackendFile, storage.BackendSQLite:
	default:
		return apperr.Configuration("invalid storage backend: "+c.Storage.Backend, nil)
	}
	return nil
}

// ValidateEndpoint checks that the domain resolves to a usable base URL.
func (c *Config) ValidateEndpoint() error {
	if strings.TrimSpace(c.Endpoint.Domain) == "" {
		return apperr.Configuration(EnvDomain+" is not set", nil)
	}
	_, err := client.Resolve(c.Endpoint.Domain, c.Endpoint.Namespace, c.Endpoint.Version,
		client.RouteOllama, client.ActionChat)
	return err
}
