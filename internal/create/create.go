// Package create materializes a named environment from a previously
// packaged build archive.
package create

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/twangboy/relative-environment-for-python/internal/archive"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// Create unpacks the packaged build for triplet into destRoot/name and
// returns the new environment's path. An existing destination is never
// touched; the error wraps fs.ErrExist so callers can treat it as
// idempotent success.
func Create(ctx context.Context, name, destRoot string, w workdir.WorkDirs, triplet string) (string, error) {
	dest := filepath.Join(destRoot, name)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("directory %s: %w", dest, fs.ErrExist)
	}

	archivePath := w.ArchivePath(triplet)
	if _, err := os.Stat(archivePath); err != nil {
		return "", fmt.Errorf(
			"no archived build for %s at %s; use relenv fetch or relenv build to obtain one", triplet, archivePath)
	}

	ctxlog.FromContext(ctx).Info("Creating environment.", "name", name, "dest", dest, "archive", archivePath)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	if err := archive.Extract(archivePath, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("unpacking %s: %w", archivePath, err)
	}
	return dest, nil
}
