// Package logger provides structured logging using Go 1.21's log/slog.
// The algo worker uses it for trade-lifecycle events so fills, expiries, and
// rollbacks are queryable as JSON; infra components stay on stdlib log.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init creates a structured JSON logger for the given service and installs it
// as the slog default. Level strings follow config convention:
// "debug", "info", "warn", "error".
func Init(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a config level string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
