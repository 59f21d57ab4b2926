package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/twangboy/relative-environment-for-python/internal/archive"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/download"
	"github.com/twangboy/relative-environment-for-python/internal/ui"
)

// Run drives one full build: optional cleanup of previous remnants, source
// downloads, the scheduled build itself, and packaging of the install
// prefix into the final archive.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if a.config.Clean {
		a.builder.Clean(ctx)
	}

	// Cleanup applies to success and failure alike, but always after the
	// archive had its chance to be written.
	if a.config.Cleanup {
		defer func() {
			prefix := a.builder.Prefix()
			a.logger.Debug("Removing install prefix.", "prefix", prefix)
			if err := os.RemoveAll(prefix); err != nil {
				a.logger.Warn("Unable to remove install prefix.", "prefix", prefix, "error", err)
			}
		}()
	}

	steps, err := a.registry.Select(a.config.Steps)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("no build steps registered; provide recipe manifests with --recipes")
	}

	if !a.config.NoDownload {
		var downloads []*download.Download
		for _, step := range steps {
			if step.Download != nil {
				downloads = append(downloads, step.Download)
			}
		}
		if len(downloads) > 0 {
			if err := os.MkdirAll(a.dirs.Download, 0o755); err != nil {
				return err
			}
			mgr := download.NewManager(a.config.DownloadConcurrency)
			if err := mgr.FetchAll(ctx, downloads); err != nil {
				return err
			}
		}
	}

	if !a.config.CI {
		watchCtx, stopWatch := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			ui.New(a.uiW, a.builder.Snapshot).Watch(watchCtx, 300*time.Millisecond)
		}()
		defer func() {
			stopWatch()
			<-done
		}()
	}

	if err := a.builder.Run(ctx, a.config.Steps); err != nil {
		return err
	}

	return a.packageBuild(ctx)
}

// packageBuild writes the install prefix into the triplet's tar.xz archive,
// logging every include and skip decision to its own log file.
func (a *App) packageBuild(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	archivePath := a.dirs.ArchivePath(a.builder.Triplet())

	if _, err := os.Stat(a.builder.Prefix()); err != nil {
		return fmt.Errorf("nothing to package: install prefix %s does not exist", a.builder.Prefix())
	}

	if err := os.MkdirAll(a.dirs.Logs, 0o755); err != nil {
		return err
	}
	logf, err := os.Create(filepath.Join(a.dirs.Logs, "archive.log"))
	if err != nil {
		return fmt.Errorf("creating archive log: %w", err)
	}
	defer logf.Close()

	logger.Info("Packaging build.", "archive", archivePath)
	if err := archive.Create(archivePath, a.builder.Prefix(), a.config.ArchiveGlobs, logf); err != nil {
		return fmt.Errorf("packaging build: %w", err)
	}
	logger.Info("Build packaged.", "archive", archivePath)
	return nil
}
