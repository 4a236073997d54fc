// Package logger builds the structured loggers used across the kit.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Standard attribute keys. Use these consistently so fetch logs can be
// correlated with diagnostic events.
const (
	KeyRequestID = "request_id"
	KeyLoader    = "loader"
	KeyStrategy  = "strategy"
	KeyModelID   = "model_id"
	KeyPriority  = "priority"
	KeyAttempt   = "attempt"
	KeyLatency   = "latency"
	KeyError     = "error"
	KeyPath      = "path"
	KeyURL       = "url"
	KeyStatus    = "status"
	KeyBytes     = "bytes"
)

// Config holds logger configuration
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// New creates a logger from cfg. An empty config logs info and above as text to stderr.
func New(cfg Config) (*slog.Logger, error) {
	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		out = f
	}
	return NewWithWriter(out, cfg.Level, cfg.Format)
}

// NewWithWriter creates a logger writing to w. This is primarily useful for testing.
func NewWithWriter(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel converts a level name into a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Err formats an error attribute, tolerating nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
