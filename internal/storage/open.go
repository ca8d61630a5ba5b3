package storage

import (
	"path/filepath"

	"github.com/bz888/modeler/internal/apperr"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Open builds the configured backend. SQLite stores must be closed by the
// caller; check for io.Closer.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return nil, apperr.Configuration("storage dir is empty", nil)
		}
		return NewFileStore(cfg.Dir), nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			if cfg.Dir == "" {
				return nil, apperr.Configuration("sqlite path is empty", nil)
			}
			path = filepath.Join(cfg.Dir, "transcripts.db")
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, apperr.Configuration("unknown storage backend: "+cfg.Backend, nil)
	}
}
