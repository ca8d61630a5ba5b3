// Package storage persists transcripts under a user-chosen key. Every backend
// stores the same JSON array encoding, so a transcript saved by one backend can
// be exported to the other byte for byte.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/transcript"
)

type Store interface {
	// Exists reports whether key holds a saved transcript, for overwrite prompts.
	Exists(ctx context.Context, key string) bool
	// Save writes a full snapshot of t, replacing any previous one.
	Save(ctx context.Context, key string, t *transcript.Transcript) error
	// Load returns the stored transcript or an error; never a partial one.
	Load(ctx context.Context, key string) (*transcript.Transcript, error)
	List(ctx context.Context) ([]string, error)
}

type record struct {
	ID        string          `json:"id"`
	Role      transcript.Role `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode renders turns as a pretty-printed JSON array with RFC 3339 timestamps.
func Encode(t *transcript.Transcript) ([]byte, error) {
	turns := t.Turns()
	records := make([]record, len(turns))
	for i, turn := range turns {
		records[i] = record{
			ID:        turn.ID,
			Role:      turn.Role,
			Content:   turn.Content,
			Timestamp: turn.CreatedAt.UTC(),
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, apperr.Serialization("encode transcript", err)
	}
	return append(data, '\n'), nil
}

func Decode(data []byte) (*transcript.Transcript, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperr.Deserialization("decode transcript", err)
	}
	if records == nil {
		return nil, apperr.Deserialization("transcript is not a JSON array", nil)
	}

	turns := make([]transcript.Turn, len(records))
	for i, r := range records {
		if r.Timestamp.IsZero() {
			return nil, apperr.Deserialization(fmt.Sprintf("turn %d: missing timestamp", i), nil)
		}
		turns[i] = transcript.Turn{
			ID:        r.ID,
			Role:      r.Role,
			Content:   r.Content,
			CreatedAt: r.Timestamp.UTC(),
		}
	}

	t, err := transcript.FromTurns(turns)
	if err != nil {
		return nil, apperr.Deserialization("invalid transcript", err)
	}
	return t, nil
}
