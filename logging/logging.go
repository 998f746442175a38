package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

type (
	Config struct {
		// File receives every record at Level and above. Empty disables it.
		File  string
		Level string

		Console      io.Writer
		ConsoleLevel slog.Level
	}

	teeHandler struct {
		handlers []slog.Handler
	}

	nopCloser struct{}
)

func (nopCloser) Close() error {
	return nil
}

func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level

	value = strings.TrimSpace(value)
	if value == "" {
		return slog.LevelInfo, nil
	}

	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// New builds a logger that writes to a rotating file and to the console.
// The returned closer releases the file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	handlers := make([]slog.Handler, 0, 2)
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
		}

		closer = file
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
	}

	if cfg.Console != nil {
		consoleLevel := cfg.ConsoleLevel
		if consoleLevel < level {
			consoleLevel = level
		}

		handlers = append(handlers, slog.NewTextHandler(cfg.Console, &slog.HandlerOptions{Level: consoleLevel}))
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closer, nil
	}

	return slog.New(&teeHandler{handlers: handlers}), closer, nil
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error

	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}

		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h.WithAttrs(attrs))
	}

	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h.WithGroup(name))
	}

	return &teeHandler{handlers: handlers}
}
