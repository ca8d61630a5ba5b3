package client

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/bz888/modeler/internal/apperr"
)

const (
	DefaultNamespace = "modeler"
	DefaultVersion   = "v1"

	RouteOllama     = "ollama"
	RoutePrecontext = "precontext"

	ActionChat   = "chat"
	ActionModels = "models"
)

// Client represents a client for the modeler API
type Client struct {
	base      *url.URL
	namespace string
	version   string
	http      *http.Client
}

// ClientConfig holds the configuration for the client
type ClientConfig struct {
	// Base is an origin such as https://api.example.com or a bare host.
	Base       string
	Namespace  string
	Version    string
	HTTPClient *http.Client
}

// NewClient validates the base location up front so that a bad domain is
// reported when the client is built rather than on first send.
func NewClient(config ClientConfig) (*Client, error) {
	base, err := parseBase(config.Base)
	if err != nil {
		return nil, err
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	version := config.Version
	if version == "" {
		version = DefaultVersion
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		base:      base,
		namespace: namespace,
		version:   version,
		http:      httpClient,
	}, nil
}

func (c *Client) ChatURL(route string) (string, error) {
	return resolve(c.base, c.namespace, c.version, route, ActionChat)
}

func (c *Client) ModelsURL() (string, error) {
	return resolve(c.base, c.namespace, c.version, RouteOllama, ActionModels)
}

// ChatRoute picks the precontext route when a precontext is selected.
func ChatRoute(precontext string) string {
	if strings.TrimSpace(precontext) != "" {
		return RoutePrecontext
	}
	return RouteOllama
}

// Resolve builds <base>/<namespace>/<version>/<route>/<action>. It does no I/O.
func Resolve(base, namespace, version, route, action string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	return resolve(u, namespace, version, route, action)
}

func resolve(base *url.URL, tokens ...string) (string, error) {
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			return "", apperr.Configuration("endpoint token is empty", nil)
		}
		if strings.Contains(tok, "/") {
			return "", apperr.Configuration("endpoint token contains '/': "+tok, nil)
		}
	}
	return base.JoinPath(tokens...).String(), nil
}

func parseBase(base string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, apperr.Configuration("base location is empty", nil)
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, apperr.Configuration("invalid base location", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.Configuration("unsupported scheme: "+u.Scheme, nil)
	}
	if u.Host == "" {
		return nil, apperr.Configuration("base location has no host", nil)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, apperr.Configuration("base location must not carry a query or fragment", nil)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}
