package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" Warning "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("ERROR"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestDevConsoleOutput(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	var buf bytes.Buffer
	require.NoError(t, InitLogger(Config{Dev: true, Level: "debug", Console: &buf}))

	NewLogger("session").Info().Str("turn", "abc").Msg("stream opened")

	out := buf.String()
	assert.Contains(t, out, "stream opened")
	assert.Contains(t, out, "tag=session")
	assert.Contains(t, out, "turn=abc")
}

func TestLoggerCreatedBeforeInit(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	early := NewLogger("early")

	var buf bytes.Buffer
	require.NoError(t, InitLogger(Config{Dev: true, Console: &buf}))
	early.Warn().Msg("late sink")

	assert.Contains(t, buf.String(), "late sink")
}

func TestFileSink(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	dir := t.TempDir()
	require.NoError(t, InitLogger(Config{LogPath: dir, Level: "info"}))

	NewLogger("store").Info().Msg("saved transcript")
	NewLogger("store").Debug().Msg("filtered out")
	require.NoError(t, Close())

	matches, err := filepath.Glob(filepath.Join(dir, "modeler_log_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"saved transcript"`)
	assert.Contains(t, string(data), `"tag":"store"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNopWithoutInit(t *testing.T) {
	require.NoError(t, Close())
	// Must not panic on a discarded sink.
	NewLogger("quiet").Error().Msg("nobody listens")
}
