// Package logging builds the shared slog logger used by every fleet binary.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger settings.
type Config struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty = stdout only
}

// New creates a JSON slog.Logger. When cfg.File is set, output is written to
// both stdout and a size-rotated log file.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stdout

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
