// Package toolchain locates and fetches the prebuilt cross-compiler
// toolchains linux builds depend on.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twangboy/relative-environment-for-python/internal/archive"
	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
	"github.com/twangboy/relative-environment-for-python/internal/download"
	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// urlTemplate locates the prebuilt toolchain archives published per release.
const urlTemplate = "https://woz.io/relenv/{version}/toolchain/%s.tar.xz"

// Path returns the directory holding the toolchain for the given arch.
func Path(w workdir.WorkDirs, arch string) string {
	return filepath.Join(w.Toolchain, arch+"-linux-gnu")
}

// Exists reports whether the toolchain for the given arch is on disk.
func Exists(w workdir.WorkDirs, arch string) bool {
	_, err := os.Stat(Path(w, arch))
	return err == nil
}

// Fetch downloads and unpacks the prebuilt toolchain for the given arch and
// release version. Fetching over an existing toolchain overwrites it.
func Fetch(ctx context.Context, w workdir.WorkDirs, arch, version string) error {
	logger := ctxlog.FromContext(ctx)

	d := &download.Download{
		Name:        "toolchain-" + arch,
		URLTemplate: fmt.Sprintf(urlTemplate, arch+"-linux-gnu"),
		Version:     version,
		Destination: w.Download,
	}
	local, err := d.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching toolchain for %s: %w", arch, err)
	}

	if err := os.MkdirAll(w.Toolchain, 0o755); err != nil {
		return err
	}
	if err := archive.Extract(local, w.Toolchain); err != nil {
		return fmt.Errorf("unpacking toolchain for %s: %w", arch, err)
	}
	logger.Info("Toolchain ready.", "arch", arch, "path", Path(w, arch))
	return nil
}
