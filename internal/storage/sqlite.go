package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/transcript"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	key      TEXT PRIMARY KEY,
	body     TEXT NOT NULL,
	saved_at TEXT NOT NULL
)`

// SQLiteStore keeps every transcript as a row in a single database file.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.NewLogger("storage")}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) bool {
	name, err := normalizeKey(key)
	if err != nil {
		return false
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM transcripts WHERE key = ?`, name).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Warn().Err(err).Str("key", name).Msg("exists query failed")
	}
	return err == nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, t *transcript.Transcript) error {
	name, err := normalizeKey(key)
	if err != nil {
		return err
	}
	data, err := Encode(t)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (key, body, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at`,
		name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", name, err)
	}

	s.log.Info().Str("key", name).Int("turns", t.Len()).Msg("transcript saved")
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*transcript.Transcript, error) {
	name, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var body string
	err = s.db.QueryRowContext(ctx, `SELECT body FROM transcripts WHERE key = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no transcript saved as " + key)
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", name, err)
	}
	return Decode([]byte(body))
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM transcripts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
