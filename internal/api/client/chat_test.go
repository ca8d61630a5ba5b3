package client

import (
	"testing"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedTranscript(t *testing.T) *transcript.Transcript {
	t.Helper()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := transcript.FromTurns([]transcript.Turn{
		{ID: "1", Role: transcript.RoleUser, Content: "hello <b>", CreatedAt: ts},
		{ID: "2", Role: transcript.RoleAssistant, Content: "Hi there", CreatedAt: ts},
		{ID: "3", Role: transcript.RoleUser, Content: "how are you?", CreatedAt: ts},
	})
	require.NoError(t, err)
	return tr
}

func TestBuildChatRequest(t *testing.T) {
	payload, err := BuildChatRequest(sealedTranscript(t), "gemma3:1b", "clientResponder", true)
	require.NoError(t, err)

	want := `{"model":"gemma3:1b","precontext":"clientResponder","messages":[` +
		`{"role":"user","content":"hello <b>"},` +
		`{"role":"assistant","content":"Hi there"},` +
		`{"role":"user","content":"how are you?"}],"stream":true}`
	assert.Equal(t, want, string(payload))
}

func TestBuildChatRequestDeterministic(t *testing.T) {
	tr := sealedTranscript(t)
	first, err := BuildChatRequest(tr, "gemma3:1b", "development", true)
	require.NoError(t, err)
	second, err := BuildChatRequest(tr, "gemma3:1b", "development", true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildChatRequestRejectsEmptyPending(t *testing.T) {
	tr := transcript.New()
	_, err := tr.AppendUser("hello")
	require.NoError(t, err)
	_, err = tr.BeginAssistant()
	require.NoError(t, err)

	_, err = BuildChatRequest(tr, "gemma3:1b", "", true)
	assert.True(t, apperr.IsSerialization(err))
}

func TestBuildChatRequestRejectsInvalidUTF8(t *testing.T) {
	tr := transcript.New()
	_, err := tr.AppendUser("bad \xff bytes")
	require.NoError(t, err)

	_, err = BuildChatRequest(tr, "gemma3:1b", "", true)
	assert.True(t, apperr.IsSerialization(err))
}

func TestBuildChatRequestRejectsEmptyModel(t *testing.T) {
	_, err := BuildChatRequest(transcript.New(), " ", "", true)
	assert.True(t, apperr.IsSerialization(err))
}

func TestDecodeFragment(t *testing.T) {
	text, ok, err := DecodeFragment([]byte(`  {"model":"gemma3:1b","message":{"role":"assistant","content":"Hi"},"done":false}` + "\n"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hi", text)
}

func TestDecodeFragmentSkips(t *testing.T) {
	for _, line := range []string{"", "   ", "\r\n", `{"message":{"role":"assistant","content":""},"done":true}`} {
		text, ok, err := DecodeFragment([]byte(line))
		assert.NoError(t, err, "line %q", line)
		assert.False(t, ok)
		assert.Empty(t, text)
	}
}

func TestDecodeFragmentErrors(t *testing.T) {
	for _, line := range []string{
		`: keepalive`,
		`{"message":`,
		`{"done":false}`,
		`{"message":{"role":"assistant"}}`,
		`{"message":{"content":42}}`,
		`null`,
	} {
		_, ok, err := DecodeFragment([]byte(line))
		assert.False(t, ok)
		assert.True(t, apperr.IsDecode(err), "line %q: %v", line, err)
	}
}

func TestDecodeFragmentUpstreamError(t *testing.T) {
	_, ok, err := DecodeFragment([]byte(`{"error":"model not found"}`))
	assert.False(t, ok)
	assert.True(t, apperr.IsTransport(err))
	assert.Contains(t, err.Error(), "model not found")
}
