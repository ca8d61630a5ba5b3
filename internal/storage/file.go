package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/transcript"
)

// FileStore keeps one JSON file per key in a single directory.
type FileStore struct {
	dir string
	log *logger.Logger
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, log: logger.NewLogger("storage")}
}

// normalizeKey appends .json to extension-less keys and rejects anything that
// would escape the store directory.
func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperr.Configuration("transcript key is empty", nil)
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.HasPrefix(key, "..") {
		return "", apperr.Configuration("invalid transcript key: "+key, nil)
	}
	if filepath.Ext(key) == "" {
		key += ".json"
	}
	return key, nil
}

func (s *FileStore) path(key string) (string, error) {
	name, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) Exists(ctx context.Context, key string) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func (s *FileStore) Save(ctx context.Context, key string, t *transcript.Transcript) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := Encode(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temp file first, then rename (atomic operation)
	tmp, err := os.CreateTemp(s.dir, ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	s.log.Info().Str("path", path).Int("turns", t.Len()).Msg("transcript saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context, key string) (*transcript.Transcript, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFound("no transcript saved as " + key)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("path", path).Int("turns", t.Len()).Msg("transcript loaded")
	return t, nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}
