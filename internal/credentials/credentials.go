package credentials

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/joho/godotenv"
)

type Scheme string

const (
	// SchemeAPIKey sends the key in X-API-Key, which is what the modeler API expects.
	SchemeAPIKey Scheme = "apikey"
	SchemeBearer Scheme = "bearer"
)

const DefaultEnvVar = "MODELER_API_KEY"

type Credential struct {
	Key    string
	Scheme Scheme
}

// Apply attaches the credential to an outgoing request header.
func (c Credential) Apply(h http.Header) {
	switch c.Scheme {
	case SchemeBearer:
		h.Set("Authorization", "Bearer "+c.Key)
	default:
		h.Set("X-API-Key", c.Key)
	}
}

type Provider interface {
	Credential(ctx context.Context) (Credential, error)
}

// Env reads the key from the process environment, loading EnvFile first when set.
type Env struct {
	EnvFile string
	EnvVar  string
	Scheme  Scheme
}

func (e Env) Credential(ctx context.Context) (Credential, error) {
	if e.EnvFile != "" {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(e.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Credential{}, apperr.Configuration("load env file "+e.EnvFile, err)
		}
	}

	name := e.EnvVar
	if name == "" {
		name = DefaultEnvVar
	}
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return Credential{}, apperr.Configuration(name+" is not set", nil)
	}

	scheme := e.Scheme
	if scheme == "" {
		scheme = SchemeAPIKey
	}
	return Credential{Key: key, Scheme: scheme}, nil
}

// Static always returns the same credential.
type Static Credential

func (s Static) Credential(context.Context) (Credential, error) {
	return Credential(s), nil
}

// Obscure masks all but the last four characters of key.
func Obscure(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
