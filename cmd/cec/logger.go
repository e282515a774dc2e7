package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-cec/internal/logging"
)

func setupLogger(level string, quiet bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if quiet {
		lvl = slog.LevelError
	}
	l := logging.New("text", lvl, os.Stderr).With("app", "cec")
	logging.Set(l)
	return l
}
