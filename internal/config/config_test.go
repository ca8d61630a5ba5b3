package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/credentials"
	"github.com/bz888/modeler/internal/storage"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvDomain, EnvModel, EnvPrecontext} {
		if v, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, v) })
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemma3:1b", cfg.Model)
	assert.Equal(t, "clientResponder", cfg.Precontext)
	assert.Equal(t, "modeler", cfg.Endpoint.Namespace)
	assert.Equal(t, "v1", cfg.Endpoint.Version)
	assert.Equal(t, credentials.SchemeAPIKey, cfg.Auth.Scheme)
	assert.Equal(t, "MODELER_API_KEY", cfg.Auth.EnvVar)
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 0, cfg.Transport.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 60*time.Second, cfg.HeaderTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: llama3:latest
precontext: development
endpoint:
  domain: api.example.com
transport:
  connect_timeout: 5s
  max_retries: 2
storage:
  backend: sqlite
  dir: /tmp/modeler
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3:latest", cfg.Model)
	assert.Equal(t, "development", cfg.Precontext)
	assert.Equal(t, "api.example.com", cfg.Endpoint.Domain)
	assert.Equal(t, "v1", cfg.Endpoint.Version, "unset keys keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 2, cfg.Transport.MaxRetries)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)

	t.Setenv(EnvDomain, "https://other.example.com")
	t.Setenv(EnvModel, "gemma3:4b")
	t.Setenv(EnvPrecontext, "")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", cfg.Endpoint.Domain)
	assert.Equal(t, "gemma3:4b", cfg.Model)
	assert.Equal(t, "", cfg.Precontext, "an empty precontext selects plain chat")
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unterminated"), 0o644))

	_, err := Load(path)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Model = "llama3:latest"
	cfg.Endpoint.Domain = "api.example.com"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model", func(c *Config) { c.Model = " " }},
		{"bad scheme", func(c *Config) { c.Auth.Scheme = "basic" }},
		{"bad timeout", func(c *Config) { c.Transport.HeaderTimeout = "soon" }},
		{"negative retries", func(c *Config) { c.Transport.MaxRetries = -1 }},
		{"bad backend", func(c *Config) { c.Storage.Backend = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.True(t, apperr.IsConfiguration(cfg.Validate()))
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, apperr.IsConfiguration(cfg.ValidateEndpoint()))

	cfg.Endpoint.Domain = "api.example.com"
	assert.NoError(t, cfg.ValidateEndpoint())

	cfg.Endpoint.Domain = "ftp://api.example.com"
	assert.True(t, apperr.IsConfiguration(cfg.ValidateEndpoint()))
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	var flags Flags
	fs := pflag.NewFlagSet("modeler", pflag.ContinueOnError)
	flags.Register(fs)
	require.NoError(t, fs.Parse([]string{"--dev", "--precontext", "", "--domain", "localhost:8080"}))

	cfg := DefaultConfig()
	cfg.Model = "from-file"
	flags.Apply(cfg, fs)

	assert.True(t, cfg.Dev)
	assert.Equal(t, "", cfg.Precontext)
	assert.Equal(t, "localhost:8080", cfg.Endpoint.Domain)
	assert.Equal(t, "from-file", cfg.Model)
	assert.Equal(t, DefaultPath(), flags.Path())
}
