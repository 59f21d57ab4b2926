// Package builder is the concurrent build scheduler. It launches one
// goroutine per requested step, enforces dependency ordering through
// readiness channels that close exactly once, cancels dependents when a step
// fails, and reports the aggregate outcome of the run.
package builder

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/twangboy/relative-environment-for-python/internal/buildenv"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/recipe"
	"github.com/twangboy/relative-environment-for-python/internal/toolchain"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// Options configures a Builder for one run. The value is copied at
// construction; the scheduler never reads ambient global state.
type Options struct {
	WorkDirs workdir.WorkDirs
	Arch     string
	Platform string
	Registry *recipe.Registry
	Env      *buildenv.Builder

	// Cleanup controls whether the shared install prefix is removed after
	// the run. It applies to success and failure alike: when false the
	// prefix is always kept for inspection.
	Cleanup bool
}

// Builder schedules build steps for a single target triplet.
type Builder struct {
	dirs     workdir.WorkDirs
	arch     string
	platform string
	triplet  string
	registry *recipe.Registry
	env      *buildenv.Builder
	cleanup  bool
	runID    string

	mu    sync.Mutex
	tasks map[string]*task
}

// New validates the target triplet and returns a Builder ready to run.
func New(opts Options) (*Builder, error) {
	triplet, err := workdir.Triplet(opts.Arch, opts.Platform)
	if err != nil {
		return nil, err
	}
	env := opts.Env
	if env == nil {
		env = buildenv.New(opts.WorkDirs, opts.Platform)
	}
	return &Builder{
		dirs:     opts.WorkDirs,
		arch:     opts.Arch,
		platform: opts.Platform,
		triplet:  triplet,
		registry: opts.Registry,
		env:      env,
		cleanup:  opts.Cleanup,
		runID:    uuid.NewString(),
	}, nil
}

// Triplet returns the target triplet this builder installs into.
func (b *Builder) Triplet() string {
	return b.triplet
}

// Prefix returns the shared install root for this run.
func (b *Builder) Prefix() string {
	return b.dirs.Prefix(b.triplet)
}

// CheckPrereqs verifies everything a run needs before any execution unit
// starts. On linux that is the cross toolchain for the target arch.
func (b *Builder) CheckPrereqs() error {
	var missing []string
	if b.platform == "linux" && !toolchain.Exists(b.dirs, b.arch) {
		missing = append(missing, fmt.Sprintf(
			"toolchain for %s does not exist at %s; use relenv toolchain to obtain one",
			b.arch, toolchain.Path(b.dirs, b.arch)))
	}
	if len(missing) > 0 {
		return &PrerequisiteError{Missing: missing}
	}
	return nil
}

// Clean removes every remnant of a previous run for this triplet: the
// install prefix, the extracted sources, and the packaged archive.
func (b *Builder) Clean(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, dir := range []string{b.Prefix(), b.dirs.Src} {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Unable to remove directory.", "dir", dir, "error", err)
		}
	}
	if err := os.Remove(b.dirs.ArchivePath(b.triplet)); err != nil && !os.IsNotExist(err) {
		logger.Warn("Unable to remove archive.", "path", b.dirs.ArchivePath(b.triplet), "error", err)
	}
}

// Snapshot reports the current state of every step in the active run. It is
// safe to call concurrently with Run.
func (b *Builder) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make(map[string]State, len(b.tasks))
	for name, t := range b.tasks {
		states[name] = State(t.state.Load())
	}
	return states
}

// Run executes the requested step subset (every registered step when names
// is empty) in dependency order, with independent steps racing freely. It
// blocks until all steps reach a terminal state, then reports the aggregate
// outcome. Dependency references to steps outside the active set are
// ignored.
func (b *Builder) Run(ctx context.Context, names []string) error {
	logger := ctxlog.FromContext(ctx).With("run_id", b.runID, "triplet", b.triplet)
	ctx = ctxlog.WithLogger(ctx, logger)

	steps, err := b.registry.Select(names)
	if err != nil {
		return err
	}
	if err := b.CheckPrereqs(); err != nil {
		return err
	}

	active := make(map[string]*task, len(steps))
	for _, step := range steps {
		active[step.Name] = &task{step: step, ready: make(chan struct{})}
	}
	for _, t := range active {
		for _, dep := range t.step.DependsOn {
			d, ok := active[dep]
			if !ok {
				continue
			}
			d.dependents = append(d.dependents, t)
			t.unresolved.Add(1)
		}
	}

	b.mu.Lock()
	b.tasks = active
	b.mu.Unlock()

	// Steps with no unresolved dependencies are ready at scheduler start,
	// before any execution unit launches.
	for _, t := range active {
		if t.unresolved.Load() == 0 {
			t.markReady()
		}
	}

	// Every task gets its cancellation handle before any goroutine starts,
	// so a fast failure can always reach all of its dependents.
	for _, t := range active {
		t.ctx, t.cancel = context.WithCancelCause(ctx)
	}

	logger.Info("Starting builds.", "steps", len(active))
	var wg sync.WaitGroup
	for _, t := range active {
		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			defer t.cancel(nil)
			b.runTask(t.ctx, t)
		}(t)
	}
	wg.Wait()

	var failed, cancelled []string
	for name, t := range active {
		switch State(t.state.Load()) {
		case Failed:
			logger.Error("Step failed.", "step", name, "error", t.err)
			failed = append(failed, name)
		case Cancelled:
			logger.Warn("Step cancelled.", "step", name, "error", t.err)
			cancelled = append(cancelled, name)
		}
	}

	if b.cleanup {
		logger.Debug("Removing install prefix.", "prefix", b.Prefix())
		if err := os.RemoveAll(b.Prefix()); err != nil {
			logger.Warn("Unable to remove install prefix.", "prefix", b.Prefix(), "error", err)
		}
	}

	if len(failed) > 0 || len(cancelled) > 0 {
		sort.Strings(failed)
		sort.Strings(cancelled)
		return &RunError{Failed: failed, Cancelled: cancelled}
	}
	logger.Info("All steps succeeded.")
	return nil
}
