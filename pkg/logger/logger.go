// Package logger builds the structured slog logger used across the service.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/flowkat/pkg/config"
)

// Logger bundles the slog logger with its adjustable level and owned writers.
type Logger struct {
	*slog.Logger
	level   *slog.LevelVar
	closers []io.Closer
}

// New creates a logger from cfg: text or JSON on stdout, an optional rotating
// file, secret masking, and error-level fan-out to Sentry when enabled.
func New(cfg config.LoggerConfig, sentryCfg config.SentryConfig) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	l := &Logger{level: level}

	var out io.Writer = os.Stdout
	if cfg.File.Path != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		l.closers = append(l.closers, file)
		out = io.MultiWriter(os.Stdout, file)
	}

	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		base = slog.NewJSONHandler(out, opts)
	} else {
		base = slog.NewTextHandler(out, opts)
	}

	handler := slog.Handler(NewMaskingHandler(base))
	if sentryCfg.Enabled && sentry.CurrentHub().Client() != nil {
		sentryHandler := slogsentry.Option{
			Level: slog.LevelError,
			Hub:   sentry.CurrentHub(),
		}.NewSentryHandler()
		handler = newFanoutHandler(handler, NewMaskingHandler(sentryHandler))
	}

	l.Logger = slog.New(handler)
	return l
}

// NewWithWriter creates a masked text logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	return &Logger{
		Logger: slog.New(NewMaskingHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))),
		level:  lv,
	}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Level reports the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Close releases file writers.
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
