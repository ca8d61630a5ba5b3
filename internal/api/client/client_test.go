package client

import (
	"testing"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"origin", "https://api.example.com", "https://api.example.com/modeler/v1/precontext/chat"},
		{"trailing slash", "https://api.example.com/", "https://api.example.com/modeler/v1/precontext/chat"},
		{"bare host", "api.example.com", "https://api.example.com/modeler/v1/precontext/chat"},
		{"base path", "http://localhost:8080/gateway", "http://localhost:8080/gateway/modeler/v1/precontext/chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.base, "modeler", "v1", RoutePrecontext, ActionChat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		tokens [4]string
	}{
		{"empty base", "", [4]string{"modeler", "v1", "ollama", "chat"}},
		{"bad host", "https://exa mple.com", [4]string{"modeler", "v1", "ollama", "chat"}},
		{"ftp scheme", "ftp://files.example.com", [4]string{"modeler", "v1", "ollama", "chat"}},
		{"no host", "https://", [4]string{"modeler", "v1", "ollama", "chat"}},
		{"query", "https://api.example.com?x=1", [4]string{"modeler", "v1", "ollama", "chat"}},
		{"empty token", "https://api.example.com", [4]string{"modeler", "", "ollama", "chat"}},
		{"slash token", "https://api.example.com", [4]string{"modeler", "v1", "ollama/x", "chat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.base, tt.tokens[0], tt.tokens[1], tt.tokens[2], tt.tokens[3])
			assert.True(t, apperr.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestClientURLs(t *testing.T) {
	c, err := NewClient(ClientConfig{Base: "api.example.com"})
	require.NoError(t, err)

	chat, err := c.ChatURL(ChatRoute("development"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/modeler/v1/precontext/chat", chat)

	chat, err = c.ChatURL(ChatRoute(""))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/modeler/v1/ollama/chat", chat)

	models, err := c.ModelsURL()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/modeler/v1/ollama/models", models)
}

func TestNewClientBadBase(t *testing.T) {
	_, err := NewClient(ClientConfig{Base: "mailto://nobody"})
	assert.True(t, apperr.IsConfiguration(err))
}
