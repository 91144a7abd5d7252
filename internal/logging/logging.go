package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger at the given level. With a directory it writes JSON
// to a rotating file there; without one it writes text to stderr.
func New(level, dir string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if dir == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(rotatingFile(dir), opts))
}

func rotatingFile(dir string) io.Writer {
	return &lumberjack.Logger{
		Filename: filepath.Join(dir, "survey.slog"),
		MaxSize:  64, // MB
		MaxAge:   14,
		Compress: true,
	}
}

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
