// Package app wires the configuration, recipe registry, environment
// builder, and scheduler into one runnable application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/twangboy/relative-environment-for-python/internal/buildenv"
	"github.com/twangboy/relative-environment-for-python/internal/builder"
	"github.com/twangboy/relative-environment-for-python/internal/create"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/recipe"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle for one invocation.
type App struct {
	outW io.Writer

	// uiW carries the live status line. It must not share a stream with
	// the logger or redraws interleave with log records.
	uiW      io.Writer
	logger   *slog.Logger
	config   *Config
	dirs     workdir.WorkDirs
	registry *recipe.Registry
	builder  *builder.Builder
}

// New constructs a fully initialized App: logger, working directories,
// built-in recipes plus any manifest overlays, and the build scheduler.
func New(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	dirs := workdir.New(cfg.Root)
	triplet, err := workdir.Triplet(cfg.Arch, cfg.Platform)
	if err != nil {
		return nil, err
	}

	registry := recipe.NewRegistry(dirs.Download)
	if cfg.RecipesPath != "" {
		if err := registry.LoadManifests(ctx, cfg.RecipesPath, cfg.Arch, triplet); err != nil {
			return nil, fmt.Errorf("loading recipe manifests: %w", err)
		}
	}

	env := buildenv.New(dirs, cfg.Platform)
	// Cross builds need a native interpreter to drive the target build. It
	// is created lazily from the native build archive.
	env.CreateNative = func(ctx context.Context) (string, error) {
		nativeTriplet, err := workdir.Triplet(env.NativeArch, cfg.Platform)
		if err != nil {
			return "", err
		}
		return create.Create(ctx, "native", dirs.Root, dirs, nativeTriplet)
	}

	b, err := builder.New(builder.Options{
		WorkDirs: dirs,
		Arch:     cfg.Arch,
		Platform: cfg.Platform,
		Registry: registry,
		Env:      env,
		// The app removes the prefix itself, after packaging; the
		// scheduler must not delete it before the archive is written.
		Cleanup: false,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Application initialized.", "root", cfg.Root, "triplet", triplet)
	return &App{
		outW:     outW,
		uiW:      os.Stdout,
		logger:   logger,
		config:   cfg,
		dirs:     dirs,
		registry: registry,
		builder:  b,
	}, nil
}

// Registry exposes the recipe registry, primarily for tests.
func (a *App) Registry() *recipe.Registry {
	return a.registry
}

// Dirs exposes the run's working directories.
func (a *App) Dirs() workdir.WorkDirs {
	return a.dirs
}

// Builder exposes the build scheduler.
func (a *App) Builder() *builder.Builder {
	return a.builder
}
