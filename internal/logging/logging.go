// Package logging builds the process logger: human-readable text on stdout
// and, when a log path is configured, JSON lines appended to a file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// multiHandler wraps multiple handlers to write to multiple destinations
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Setup creates the process logger. With an empty logPath only stdout is
// used. The returned closer flushes and closes the log file.
func Setup(logPath string, level slog.Level) (*slog.Logger, func() error, error) {
	return setup(os.Stdout, logPath, level)
}

func setup(stdout io.Writer, logPath string, level slog.Level) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: level}
	textHandler := slog.NewTextHandler(stdout, opts)

	if logPath == "" {
		return slog.New(textHandler), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := slog.New(&multiHandler{
		handlers: []slog.Handler{textHandler, slog.NewJSONHandler(logFile, opts)},
	})

	closer := func() error {
		_ = logFile.Sync()
		return logFile.Close()
	}
	return logger, closer, nil
}

// Level maps the verbose flag to a slog level
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
