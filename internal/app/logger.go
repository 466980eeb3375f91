package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Development builds log at
// debug level with the text handler; production is expected to set
// LOG_FORMAT=json for machine-readable output.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
