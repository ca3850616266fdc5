package logging

import (
	"log/slog"
	"os"
)

// Logger is the global structured logger
var Logger *slog.Logger

// Initialize sets up the global logger for the given environment. Production
// logs JSON at info level; everything else logs text at debug level.
func Initialize(env string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	if env == "production" {
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Error logs an error with structured fields
func Error(msg string, err error, args ...any) {
	if Logger == nil {
		return
	}
	allArgs := append([]any{"error", err}, args...)
	Logger.Error(msg, allArgs...)
}

// Info logs an info message with structured fields
func Info(msg string, args ...any) {
	if Logger == nil {
		return
	}
	Logger.Info(msg, args...)
}

// Debug logs a debug message with structured fields
func Debug(msg string, args ...any) {
	if Logger == nil {
		return
	}
	Logger.Debug(msg, args...)
}

// Warn logs a warning message with structured fields
func Warn(msg string, args ...any) {
	if Logger == nil {
		return
	}
	Logger.Warn(msg, args...)
}
