package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/twangboy/relative-environment-for-python/internal/app"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
)

// cmdContext attaches a flag-configured logger to the command's context for
// subcommands that run outside the full application wiring.
func cmdContext(cmd *cobra.Command) context.Context {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return ctxlog.WithLogger(cmd.Context(), slog.New(handler))
}

// resolveConfig applies root-level defaults for subcommands that only need
// the data directory and target triplet.
func resolveConfig(arch, platform string) (*app.Config, error) {
	return app.NewConfig(app.Config{
		Root:      rootDir,
		Arch:      arch,
		Platform:  platform,
		LogLevel:  logLevel,
		LogFormat: logFormat,
	})
}
