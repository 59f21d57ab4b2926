package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twangboy/relative-environment-for-python/internal/recipe"
	"github.com/twangboy/relative-environment-for-python/internal/toolchain"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

func TestAppRunBuildsAndPackages(t *testing.T) {
	cfg, err := NewConfig(Config{
		Root:       t.TempDir(),
		Arch:       "x86_64",
		Platform:   "linux",
		NoDownload: true,
		Cleanup:    true,
		CI:         true,
	})
	require.NoError(t, err)

	var logs bytes.Buffer
	a, err := New(&logs, cfg)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(toolchain.Path(a.Dirs(), cfg.Arch), 0o755))

	require.NoError(t, a.Registry().Register("stub", recipe.Options{
		Build: func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
			lib := filepath.Join(dirs.Prefix, "lib")
			if err := os.MkdirAll(lib, 0o755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(lib, "stub.so"), []byte("elf"), 0o644)
		},
	}))

	require.NoError(t, a.Run(context.Background()))

	assert.FileExists(t, a.Dirs().ArchivePath(a.Builder().Triplet()))
	assert.FileExists(t, filepath.Join(a.Dirs().Logs, "archive.log"))
	assert.NoDirExists(t, a.Builder().Prefix(), "cleanup removes the prefix after packaging")
}

func TestAppRunFailurePropagates(t *testing.T) {
	cfg, err := NewConfig(Config{
		Root:       t.TempDir(),
		Arch:       "x86_64",
		Platform:   "linux",
		NoDownload: true,
		CI:         true,
	})
	require.NoError(t, err)

	a, err := New(io.Discard, cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(toolchain.Path(a.Dirs(), cfg.Arch), 0o755))

	require.NoError(t, a.Registry().Register("broken", recipe.Options{
		Build: func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
			return assert.AnError
		},
	}))

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.NoFileExists(t, a.Dirs().ArchivePath(a.Builder().Triplet()))
}

func TestAppRunWithoutStepsFailsEarly(t *testing.T) {
	cfg, err := NewConfig(Config{
		Root:       t.TempDir(),
		Arch:       "x86_64",
		Platform:   "linux",
		NoDownload: true,
		CI:         true,
	})
	require.NoError(t, err)

	a, err := New(io.Discard, cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(toolchain.Path(a.Dirs(), cfg.Arch), 0o755))

	err = a.Run(context.Background())
	assert.ErrorContains(t, err, "no build steps registered")
}

func TestAppRunKeepsStatusLineOffTheLogStream(t *testing.T) {
	cfg, err := NewConfig(Config{
		Root:       t.TempDir(),
		Arch:       "x86_64",
		Platform:   "linux",
		NoDownload: true,
		CI:         false,
	})
	require.NoError(t, err)

	var logs, status bytes.Buffer
	a, err := New(&logs, cfg)
	require.NoError(t, err)
	a.uiW = &status
	require.NoError(t, os.MkdirAll(toolchain.Path(a.Dirs(), cfg.Arch), 0o755))

	require.NoError(t, a.Registry().Register("stub", recipe.Options{
		Build: func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
			return os.WriteFile(filepath.Join(dirs.Prefix, "stub.so"), []byte("elf"), 0o644)
		},
	}))

	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, status.String(), "\r", "status line redraws in place")
	assert.Contains(t, status.String(), "stub")
	assert.NotContains(t, logs.String(), "\r", "log records never carry redraw sequences")
}
