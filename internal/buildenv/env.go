// Package buildenv assembles the process environment handed to each build
// step: host triplet, target architecture, and cross-compile pointers to a
// native toolchain when the target differs from the build machine.
package buildenv

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// Environment variable names consumed by build functions.
const (
	HostVar     = "RELENV_HOST"
	ArchVar     = "RELENV_ARCH"
	CrossVar    = "RELENV_CROSS"
	NativePyVar = "RELENV_NATIVE_PY"
)

// Builder derives a fresh environment per step. The environment is never
// shared or mutated across steps.
type Builder struct {
	Dirs       workdir.WorkDirs
	Platform   string
	NativeArch string

	// CreateNative builds the native runtime needed for cross builds on
	// demand and returns its prefix. It must be idempotent; an
	// fs.ErrExist-wrapped error counts as success.
	CreateNative func(ctx context.Context) (string, error)
}

// New returns a Builder for the native build machine running this process.
func New(dirs workdir.WorkDirs, platform string) *Builder {
	return &Builder{
		Dirs:       dirs,
		Platform:   platform,
		NativeArch: workdir.NativeArch(),
	}
}

// Env assembles the environment for one step: inherited PATH, host triplet,
// architecture, and for cross builds the pointers to the native toolchain,
// creating it first if it is absent.
func (b *Builder) Env(ctx context.Context, dirs workdir.Dirs) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)

	env := map[string]string{
		"PATH":  os.Getenv("PATH"),
		HostVar: dirs.Triplet,
		ArchVar: dirs.Arch,
	}

	if dirs.Arch != b.NativeArch {
		nativeTriplet, err := workdir.Triplet(b.NativeArch, b.Platform)
		if err != nil {
			return nil, err
		}
		env[CrossVar] = b.Dirs.Prefix(nativeTriplet)

		nativePrefix := filepath.Join(b.Dirs.Root, "native")
		if b.CreateNative != nil {
			if _, statErr := os.Stat(nativePrefix); statErr != nil {
				logger.Info("Native runtime missing for cross build, creating it.", "prefix", nativePrefix)
				created, err := b.CreateNative(ctx)
				if err != nil && !errors.Is(err, fs.ErrExist) {
					return nil, err
				}
				if created != "" {
					nativePrefix = created
				}
			}
		}
		env[NativePyVar] = filepath.Join(nativePrefix, "bin", "python3")
	}

	return env, nil
}
