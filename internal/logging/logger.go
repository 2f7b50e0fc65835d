package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration
type Config struct {
	Level      zerolog.Level
	Format     string // "json" or "console"
	TimeFormat string
	Output     io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      zerolog.InfoLevel,
		Format:     "console",
		TimeFormat: time.RFC3339,
	}
}

// New creates a zerolog logger. Output defaults to stderr.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: cfg.TimeFormat}
	}

	return zerolog.New(w).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()
}

// ConfigFrom builds a Config from the LOG_LEVEL / LOG_FORMAT values.
// Unknown values keep the defaults.
func ConfigFrom(level, format string) Config {
	cfg := DefaultConfig()

	if level = strings.ToLower(strings.TrimSpace(level)); level != "" {
		if lvl, err := zerolog.ParseLevel(level); err == nil {
			cfg.Level = lvl
		}
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		cfg.Format = "json"
	case "console":
		cfg.Format = "console"
	}

	return cfg
}

// NewFromEnv creates a logger based on environment variables
// LOG_LEVEL: trace, debug, info, warn, error (default: info)
// LOG_FORMAT: json, console (default: console)
func NewFromEnv() zerolog.Logger {
	return New(ConfigFrom(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))
}

// FromContext returns the request logger, or a disabled logger when none is attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// WithUserID creates a child logger with a user_id field
func WithUserID(ctx context.Context, userID string) context.Context {
	logger := FromContext(ctx)
	child := logger.With().Str("user_id", userID).Logger()
	return WithContext(ctx, child)
}
