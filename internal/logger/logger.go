package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// Dev mirrors every record to Console in human-readable form.
	Dev bool
	// LogPath is a directory; when set, JSON records go to a timestamped file in it.
	LogPath string
	Level   string
	// Console defaults to os.Stderr. The UI passes its debug pane here.
	Console io.Writer
}

// Logger is a tagged handle onto the process-wide sink. It resolves the sink on
// every call so loggers created before InitLogger pick up the configured output.
type Logger struct {
	tag string
}

var (
	mu      sync.RWMutex
	base    = zerolog.Nop()
	logFile *os.File
)

func InitLogger(cfg Config) error {
	var writers []io.Writer

	if cfg.LogPath != "" {
		if err := os.MkdirAll(cfg.LogPath, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		timestamp := time.Now().Format("20060102_150405")
		fileName := fmt.Sprintf("modeler_log_%s.log", timestamp)
		file, err := os.OpenFile(filepath.Join(cfg.LogPath, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)

		mu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		logFile = file
		mu.Unlock()
	}

	if cfg.Dev {
		out := cfg.Console
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "15:04:05"})
	}

	next := zerolog.Nop()
	if len(writers) > 0 {
		next = zerolog.New(zerolog.MultiLevelWriter(writers...)).
			Level(ParseLevel(cfg.Level)).
			With().
			Timestamp().
			Logger()
	}

	mu.Lock()
	base = next
	mu.Unlock()
	return nil
}

func NewLogger(tag string) *Logger {
	return &Logger{tag: tag}
}

func (l *Logger) logger() zerolog.Logger {
	mu.RLock()
	b := base
	mu.RUnlock()
	return b.With().Str("tag", l.tag).Logger()
}

func (l *Logger) Debug() *zerolog.Event {
	lg := l.logger()
	return lg.Debug()
}

func (l *Logger) Info() *zerolog.Event {
	lg := l.logger()
	return lg.Info()
}

func (l *Logger) Warn() *zerolog.Event {
	lg := l.logger()
	return lg.Warn()
}

func (l *Logger) Error() *zerolog.Event {
	lg := l.logger()
	return lg.Error()
}

// Close flushes and detaches the log file. Later records are discarded unless
// InitLogger is called again.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.Nop()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ParseLevel accepts DEBUG, INFO, WARN/WARNING and ERROR in any case. Anything
// else is treated as INFO.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
