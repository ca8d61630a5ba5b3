package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "nested", "chats")),
		"sqlite": sqlite,
	}
}

func sample(t *testing.T) *transcript.Transcript {
	t.Helper()
	tr, err := transcript.FromTurns([]transcript.Turn{
		{ID: "6f1c0d1e-1", Role: transcript.RoleUser, Content: "hello", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "6f1c0d1e-2", Role: transcript.RoleAssistant, Content: "Hi there\n```go\nfmt.Println(\"<ok>\")\n```", CreatedAt: time.Date(2024, 1, 1, 0, 0, 1, 123456789, time.UTC)},
	})
	require.NoError(t, err)
	return tr
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := sample(t)
			require.NoError(t, store.Save(ctx, "chat.json", want))

			got, err := store.Load(ctx, "chat.json")
			require.NoError(t, err)

			wantTurns, gotTurns := want.Turns(), got.Turns()
			require.Len(t, gotTurns, len(wantTurns))
			for i := range wantTurns {
				assert.Equal(t, wantTurns[i].ID, gotTurns[i].ID)
				assert.Equal(t, wantTurns[i].Role, gotTurns[i].Role)
				assert.Equal(t, wantTurns[i].Content, gotTurns[i].Content)
				assert.True(t, wantTurns[i].CreatedAt.Equal(gotTurns[i].CreatedAt), "timestamp %d", i)
			}
			_, pending := got.Pending()
			assert.False(t, pending)
		})
	}
}

func TestRoundTripFreshTranscript(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	want := transcript.New()
	_, err := want.AppendUser("what time is it?")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "fresh", want))
	got, err := store.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, want.Turns(), got.Turns())
}

func TestSavedFileFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	tr, err := transcript.FromTurns([]transcript.Turn{
		{ID: "a", Role: transcript.RoleUser, Content: "hello", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "chat.json", tr))

	data, err := os.ReadFile(filepath.Join(dir, "chat.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","role":"user","content":"hello","timestamp":"2024-01-01T00:00:00Z"}]`, string(data))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.Turns()[0].CreatedAt)
}

func TestLoadMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "absent.json")
			assert.True(t, apperr.IsNotFound(err), "got %v", err)
			assert.False(t, store.Exists(ctx, "absent.json"))
		})
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	cases := map[string]string{
		"truncated.json": `[{"id":"a","role":"user"`,
		"object.json":    `{"id":"a"}`,
		"null.json":      `null`,
		"badrole.json":   `[{"id":"a","role":"system","content":"x","timestamp":"2024-01-01T00:00:00Z"}]`,
		"dup.json":       `[{"id":"a","role":"user","content":"x","timestamp":"2024-01-01T00:00:00Z"},{"id":"a","role":"user","content":"y","timestamp":"2024-01-01T00:00:00Z"}]`,
		"notime.json":    `[{"id":"a","role":"user","content":"x"}]`,
		"badtime.json":   `[{"id":"a","role":"user","content":"x","timestamp":"yesterday"}]`,
	}
	for name, body := range cases {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		got, err := store.Load(ctx, name)
		assert.Nil(t, got, name)
		assert.True(t, apperr.IsDeserialization(err), "%s: %v", name, err)
	}
}

func TestExistsAndOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, store.Exists(ctx, "chat"))
			require.NoError(t, store.Save(ctx, "chat", sample(t)))
			assert.True(t, store.Exists(ctx, "chat"))
			assert.True(t, store.Exists(ctx, "chat.json"), "extension is implied")

			empty := transcript.New()
			require.NoError(t, store.Save(ctx, "chat", empty))
			got, err := store.Load(ctx, "chat.json")
			require.NoError(t, err)
			assert.Equal(t, 0, got.Len())
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			require.NoError(t, store.Save(ctx, "b.json", sample(t)))
			require.NoError(t, store.Save(ctx, "a", sample(t)))

			keys, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.json", "b.json"}, keys)
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	for _, key := range []string{"", "  ", "../escape.json", "dir/chat.json", `dir\chat.json`, ".."} {
		err := store.Save(ctx, key, sample(t))
		assert.True(t, apperr.IsConfiguration(err), "key %q: %v", key, err)
		assert.False(t, store.Exists(ctx, key))
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(Config{Backend: BackendSQLite, Dir: dir})
	require.NoError(t, err)
	require.Implements(t, (*io.Closer)(nil), s)
	require.NoError(t, s.(io.Closer).Close())

	_, err = Open(Config{Backend: "s3", Dir: dir})
	assert.True(t, apperr.IsConfiguration(err))

	_, err = Open(Config{})
	assert.True(t, apperr.IsConfiguration(err))
}
