package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/twangboy/relative-environment-for-python/internal/archive"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/recipe"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// task is the scheduler's per-step run state. The err field is written only
// by the task's own goroutine before the scheduler's WaitGroup releases, so
// reading it after Run's wait is race free.
type task struct {
	step *recipe.Step

	state      atomic.Int32
	unresolved atomic.Int32

	// ready is closed exactly once, when the last unresolved dependency
	// succeeds. A build function never starts before this channel closes.
	ready     chan struct{}
	readyOnce sync.Once

	ctx        context.Context
	cancel     context.CancelCauseFunc
	cancelOnce sync.Once
	cancelled  atomic.Bool

	dependents []*task
	err        error
}

// markReady flips the readiness signal. The transition is monotonic; a
// readiness signal is never unset.
func (t *task) markReady() {
	t.readyOnce.Do(func() {
		t.state.CompareAndSwap(int32(Waiting), int32(Ready))
		close(t.ready)
	})
}

// releaseDependents removes this step's name from every dependent's
// unresolved set, flipping now-empty sets' owners to ready. It runs on both
// success and failure so no dependent goroutine is left waiting forever.
func (t *task) releaseDependents() {
	for _, dep := range t.dependents {
		if dep.unresolved.Add(-1) == 0 {
			dep.markReady()
		}
	}
}

// cascadeCancel forcibly terminates every dependent that has not completed,
// recursively. Cancelled steps are never restarted within a run.
func cascadeCancel(t *task, failed string) {
	for _, dep := range t.dependents {
		dep.cancelOnce.Do(func() {
			dep.cancelled.Store(true)
			dep.cancel(&CancellationError{Step: dep.step.Name, Dependency: failed})
			cascadeCancel(dep, dep.step.Name)
		})
	}
}

// runTask is one step's execution unit. It blocks until the readiness
// signal is observed (or cancellation arrives), then provisions directories
// and environment and invokes the build function.
func (b *Builder) runTask(ctx context.Context, t *task) {
	logger := ctxlog.FromContext(ctx).With("step", t.step.Name)

	select {
	case <-ctx.Done():
		b.finishCancelled(ctx, t)
		return
	case <-t.ready:
	}
	// A failure may cancel this step in the same instant its readiness
	// arrives; cancellation wins.
	if ctx.Err() != nil {
		b.finishCancelled(ctx, t)
		return
	}

	t.state.Store(int32(Running))
	logger.Info("Step started.")

	if err := b.executeStep(ctx, t); err != nil {
		if t.cancelled.Load() {
			b.finishCancelled(ctx, t)
			return
		}
		t.err = &BuildStepError{Step: t.step.Name, Err: err}
		t.state.Store(int32(Failed))
		logger.Error("Step failed, cancelling dependents.", "error", err)
		cascadeCancel(t, t.step.Name)
		t.releaseDependents()
		return
	}

	t.state.Store(int32(Succeeded))
	logger.Info("Step succeeded.")
	t.releaseDependents()
}

// finishCancelled records a terminal Cancelled state for a step that never
// got to finish.
func (b *Builder) finishCancelled(ctx context.Context, t *task) {
	cause := context.Cause(ctx)
	var cancellation *CancellationError
	if !errors.As(cause, &cancellation) {
		cause = &CancellationError{Step: t.step.Name}
	}
	t.err = cause
	t.state.Store(int32(Cancelled))
	ctxlog.FromContext(ctx).Warn("Step cancelled.", "step", t.step.Name, "cause", cause)
	t.releaseDependents()
}

// executeStep provisions the step's directories, log file, sources, and
// environment, then calls the build function. A panic inside the build
// function is recovered, its trace written to the step's own log, and
// surfaced as an ordinary failure.
func (b *Builder) executeStep(ctx context.Context, t *task) (err error) {
	dirs, err := b.dirs.StepDirs(t.step.Name, b.arch, b.platform)
	if err != nil {
		return err
	}
	for _, dir := range []string{dirs.Sources, dirs.Logs, dirs.Prefix} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	logf, err := os.Create(dirs.LogPath())
	if err != nil {
		return fmt.Errorf("creating step log: %w", err)
	}
	defer logf.Close()

	if dl := t.step.Download; dl != nil {
		if err := archive.Extract(dl.FilePath(), dirs.Sources); err != nil {
			return fmt.Errorf("extracting source archive: %w", err)
		}
		dirs.Source = filepath.Join(dirs.Sources, archive.TopLevelDir(dl.FilePath()))
	}

	env, err := b.env.Env(ctx, dirs)
	if err != nil {
		return err
	}
	writeStepHeader(logf, dirs, env)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(logf, "panic: %v\n%s\n", r, debug.Stack())
			err = fmt.Errorf("build function panicked: %v", r)
		}
	}()
	return t.step.Build(ctx, env, dirs, logf)
}

// writeStepHeader records the directory bundle and environment at the top
// of the step's log so a failed build is diagnosable from the log alone.
func writeStepHeader(w io.Writer, dirs workdir.Dirs, env map[string]string) {
	rule := "********************************************************************************\n"
	fmt.Fprint(w, rule)
	fmt.Fprintf(w, "root %s\n", dirs.Root)
	fmt.Fprintf(w, "prefix %s\n", dirs.Prefix)
	fmt.Fprintf(w, "downloads %s\n", dirs.Downloads)
	fmt.Fprintf(w, "logs %s\n", dirs.Logs)
	fmt.Fprintf(w, "sources %s\n", dirs.Sources)
	fmt.Fprintf(w, "source %s\n", dirs.Source)
	fmt.Fprintf(w, "tmpbuild %s\n", dirs.TmpBuild)
	fmt.Fprint(w, rule)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s %s\n", k, env[k])
	}
	fmt.Fprint(w, rule)
}
