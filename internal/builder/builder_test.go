package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twangboy/relative-environment-for-python/internal/buildenv"
	"github.com/twangboy/relative-environment-for-python/internal/recipe"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// recorder collects ordered events from concurrently running build funcs.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (r *recorder) build(name string, fail bool) recipe.BuildFunc {
	return func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
		r.add(name + ":start")
		defer r.add(name + ":done")
		if fail {
			return errors.New("boom")
		}
		return nil
	}
}

func testBuilder(t *testing.T, reg *recipe.Registry, cleanup bool) *Builder {
	t.Helper()
	w := workdir.New(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join(w.Toolchain, "x86_64-linux-gnu"), 0o755))

	env := buildenv.New(w, "linux")
	env.NativeArch = "x86_64"

	b, err := New(Options{
		WorkDirs: w,
		Arch:     "x86_64",
		Platform: "linux",
		Registry: reg,
		Env:      env,
		Cleanup:  cleanup,
	})
	require.NoError(t, err)
	return b
}

func TestRunOrdersDependencies(t *testing.T) {
	rec := &recorder{}
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("a", recipe.Options{Build: rec.build("a", false)}))
	require.NoError(t, reg.Register("b", recipe.Options{
		Build:     rec.build("b", false),
		DependsOn: []string{"a"},
	}))

	b := testBuilder(t, reg, false)
	require.NoError(t, b.Run(context.Background(), nil))

	aDone, bStart := rec.index("a:done"), rec.index("b:start")
	require.NotEqual(t, -1, aDone)
	require.NotEqual(t, -1, bStart)
	assert.Less(t, aDone, bStart, "b must not start before a finished")

	states := b.Snapshot()
	assert.Equal(t, Succeeded, states["a"])
	assert.Equal(t, Succeeded, states["b"])
}

func TestRunIndependentStepsBothRun(t *testing.T) {
	rec := &recorder{}
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("x", recipe.Options{Build: rec.build("x", false)}))
	require.NoError(t, reg.Register("y", recipe.Options{Build: rec.build("y", false)}))

	b := testBuilder(t, reg, false)
	require.NoError(t, b.Run(context.Background(), nil))

	assert.NotEqual(t, -1, rec.index("x:done"))
	assert.NotEqual(t, -1, rec.index("y:done"))
}

func TestRunFailureCancelsDependentsTransitively(t *testing.T) {
	rec := &recorder{}
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("a", recipe.Options{Build: rec.build("a", true)}))
	require.NoError(t, reg.Register("b", recipe.Options{
		Build:     rec.build("b", false),
		DependsOn: []string{"a"},
	}))
	require.NoError(t, reg.Register("c", recipe.Options{
		Build:     rec.build("c", false),
		DependsOn: []string{"b"},
	}))

	b := testBuilder(t, reg, true)

	// Make sure the prefix exists so the failure path has something to
	// clean up.
	require.NoError(t, os.MkdirAll(b.Prefix(), 0o755))

	err := b.Run(context.Background(), nil)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, []string{"a"}, runErr.Failed)
	assert.Equal(t, []string{"b", "c"}, runErr.Cancelled)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, runErr.Names())

	// The cancelled steps never ran their build functions.
	assert.Equal(t, -1, rec.index("b:start"))
	assert.Equal(t, -1, rec.index("c:start"))

	states := b.Snapshot()
	assert.Equal(t, Failed, states["a"])
	assert.Equal(t, Cancelled, states["b"])
	assert.Equal(t, Cancelled, states["c"])

	// Failure with cleanup enabled deletes the shared install prefix.
	assert.NoDirExists(t, b.Prefix())
}

func TestRunCleanupFlagIsAuthoritative(t *testing.T) {
	t.Run("kept on failure when cleanup is off", func(t *testing.T) {
		rec := &recorder{}
		reg := recipe.NewRegistry(t.TempDir())
		require.NoError(t, reg.Register("a", recipe.Options{Build: rec.build("a", true)}))

		b := testBuilder(t, reg, false)
		require.NoError(t, os.MkdirAll(b.Prefix(), 0o755))

		require.Error(t, b.Run(context.Background(), nil))
		assert.DirExists(t, b.Prefix())
	})

	t.Run("removed on success when cleanup is on", func(t *testing.T) {
		rec := &recorder{}
		reg := recipe.NewRegistry(t.TempDir())
		require.NoError(t, reg.Register("a", recipe.Options{Build: rec.build("a", false)}))

		b := testBuilder(t, reg, true)
		require.NoError(t, b.Run(context.Background(), nil))
		assert.NoDirExists(t, b.Prefix())
	})
}

func TestRunIgnoresDependenciesOutsideActiveSet(t *testing.T) {
	rec := &recorder{}
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("b", recipe.Options{
		Build:     rec.build("b", false),
		DependsOn: []string{"not-requested"},
	}))

	b := testBuilder(t, reg, false)
	require.NoError(t, b.Run(context.Background(), []string{"b"}))
	assert.NotEqual(t, -1, rec.index("b:done"))
}

func TestRunPanicInBuildFuncBecomesStepFailure(t *testing.T) {
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("a", recipe.Options{
		Build: func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
			panic("recipe exploded")
		},
	}))

	b := testBuilder(t, reg, false)
	err := b.Run(context.Background(), nil)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, []string{"a"}, runErr.Failed)

	// The trace lands in the step's own log.
	data, readErr := os.ReadFile(filepath.Join(b.dirs.Logs, "a.log"))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "panic: recipe exploded")
}

func TestRunWritesStepLogHeader(t *testing.T) {
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("a", recipe.Options{
		Build: func(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
			fmt.Fprintln(logf, "building a")
			return nil
		},
	}))

	b := testBuilder(t, reg, false)
	require.NoError(t, b.Run(context.Background(), nil))

	data, err := os.ReadFile(filepath.Join(b.dirs.Logs, "a.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "RELENV_HOST x86_64-linux-gnu")
	assert.Contains(t, string(data), "RELENV_ARCH x86_64")
	assert.Contains(t, string(data), "building a")
}

func TestRunPrerequisiteCheckFailsBeforeAnyWork(t *testing.T) {
	rec := &recorder{}
	reg := recipe.NewRegistry(t.TempDir())
	require.NoError(t, reg.Register("a", recipe.Options{Build: rec.build("a", false)}))

	w := workdir.New(t.TempDir())
	env := buildenv.New(w, "linux")
	env.NativeArch = "x86_64"
	b, err := New(Options{
		WorkDirs: w,
		Arch:     "x86_64",
		Platform: "linux",
		Registry: reg,
		Env:      env,
	})
	require.NoError(t, err)

	runErr := b.Run(context.Background(), nil)
	var prereq *PrerequisiteError
	require.ErrorAs(t, runErr, &prereq)
	assert.Equal(t, -1, rec.index("a:start"))
}

func TestRunUnknownStepRequested(t *testing.T) {
	reg := recipe.NewRegistry(t.TempDir())
	b := testBuilder(t, reg, false)
	err := b.Run(context.Background(), []string{"nope"})
	assert.ErrorContains(t, err, "unknown step")
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	_, err := New(Options{
		WorkDirs: workdir.New(t.TempDir()),
		Arch:     "x86_64",
		Platform: "plan9",
		Registry: recipe.NewRegistry(t.TempDir()),
	})
	assert.ErrorContains(t, err, "unknown platform")
}
