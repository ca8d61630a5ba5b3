package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, domain string) *config.Config {
	t.Helper()
	t.Setenv("MODELER_API_KEY", "secret-key")

	cfg := config.DefaultConfig()
	cfg.EnvFile = ""
	cfg.Endpoint.Domain = domain
	cfg.Storage.Dir = filepath.Join(t.TempDir(), "transcripts")
	return cfg
}

func chatServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/modeler/v1/precontext/chat", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req client.ChatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gemma3:1b", req.Model)
		assert.Equal(t, "clientResponder", req.Precontext)
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAskStreamsAnswer(t *testing.T) {
	srv := chatServer(t,
		`{"model":"gemma3:1b","message":{"role":"assistant","content":"Hi"},"done":false}`,
		`not json`,
		`{"model":"gemma3:1b","message":{"role":"assistant","content":" there"},"done":false}`,
		`{"model":"gemma3:1b","message":{"role":"assistant","content":""},"done":true}`,
	)
	a, err := newApp(testConfig(t, srv.URL), true)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	sent, err := ask(context.Background(), a.sup, "hello", &out)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "Hi there\n", out.String())

	turns := a.sup.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "Hi there", turns[1].Content)

	require.NoError(t, a.sup.Save(context.Background(), "chat"))
	keys, err := a.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chat.json"}, keys)
}

func TestAskReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a, err := newApp(testConfig(t, srv.URL), true)
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	sent, err := ask(context.Background(), a.sup, "hello", &out)
	assert.True(t, sent)
	assert.True(t, apperr.IsTransport(err))
	assert.Len(t, a.sup.Turns(), 2, "the empty reply stays in the transcript")
}

func TestAskRejectsEmptyPrompt(t *testing.T) {
	a, err := newApp(testConfig(t, "api.example.com"), true)
	require.NoError(t, err)
	defer a.Close()

	sent, err := ask(context.Background(), a.sup, "  ", io.Discard)
	assert.False(t, sent)
	assert.True(t, apperr.IsUsage(err))
}

func TestNewAppRequiresDomain(t *testing.T) {
	_, err := newApp(testConfig(t, ""), true)
	assert.True(t, apperr.IsConfiguration(err))

	a, err := newApp(testConfig(t, ""), false)
	require.NoError(t, err)
	a.Close()
}

func TestPrintModels(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	printModels(cmd, []client.Model{
		{Name: "gemma3:1b", Details: client.ModelDetails{ParameterSize: "1B", Family: "gemma3"}},
		{Name: "llama3:latest", Details: client.ModelDetails{ParameterSize: "8B", Family: "llama"}},
	}, "gemma3:1b")

	assert.Contains(t, out.String(), "gemma3:1b *")
	assert.Contains(t, out.String(), "llama3:latest")
	assert.Contains(t, out.String(), "8B")

	out.Reset()
	printModels(cmd, nil, "")
	assert.Equal(t, "No models available.\n", out.String())
}
