// Package workdir computes the directory layout shared by every build step
// of a run: the download cache, extracted sources, per-step logs, the
// per-triplet install prefix, and the per-step scratch space.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Triplet returns the architecture/platform identifier used to name the
// install prefix and the final archive, e.g. "x86_64-linux-gnu".
func Triplet(arch, platform string) (string, error) {
	switch platform {
	case "linux":
		return fmt.Sprintf("%s-linux-gnu", arch), nil
	case "darwin":
		return fmt.Sprintf("%s-macos", arch), nil
	case "windows":
		return fmt.Sprintf("%s-win", arch), nil
	default:
		return "", fmt.Errorf("unknown platform %q", platform)
	}
}

// NativeArch maps the Go runtime architecture onto the names used by
// toolchain triplets.
func NativeArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// WorkDirs holds the run-wide directories, all relative to a single root.
type WorkDirs struct {
	Root      string
	Build     string
	Src       string
	Logs      string
	Download  string
	Toolchain string
}

// New returns the working directory set rooted at root.
func New(root string) WorkDirs {
	return WorkDirs{
		Root:      root,
		Build:     filepath.Join(root, "build"),
		Src:       filepath.Join(root, "src"),
		Logs:      filepath.Join(root, "logs"),
		Download:  filepath.Join(root, "download"),
		Toolchain: filepath.Join(root, "toolchain"),
	}
}

// Prefix returns the shared install root for the given triplet. Every step
// of one run installs into it.
func (w WorkDirs) Prefix(triplet string) string {
	return filepath.Join(w.Build, triplet)
}

// ArchivePath returns the location of the packaged build for a triplet.
func (w WorkDirs) ArchivePath(triplet string) string {
	return filepath.Join(w.Build, triplet+".tar.xz")
}

// Dirs is the per-step directory bundle handed to a build function. It is a
// plain value, copied at step launch; steps never share a mutable instance.
type Dirs struct {
	Name    string
	Arch    string
	Triplet string

	Root      string
	Build     string
	Downloads string
	Logs      string
	Sources   string
	Prefix    string

	// TmpBuild is freshly created for each step and never reused.
	TmpBuild string

	// Source is where the step's unpacked source lives. It defaults to the
	// prefix for steps without a download; the scheduler points it at the
	// extracted archive otherwise.
	Source string
}

// StepDirs computes the directory bundle for a single step. The temp build
// directory is created immediately so its name is unique across concurrent
// steps.
func (w WorkDirs) StepDirs(name, arch, platform string) (Dirs, error) {
	triplet, err := Triplet(arch, platform)
	if err != nil {
		return Dirs{}, err
	}
	tmp, err := os.MkdirTemp("", name+"_build")
	if err != nil {
		return Dirs{}, fmt.Errorf("creating temp build dir for %s: %w", name, err)
	}
	prefix := w.Prefix(triplet)
	return Dirs{
		Name:      name,
		Arch:      arch,
		Triplet:   triplet,
		Root:      w.Root,
		Build:     w.Build,
		Downloads: w.Download,
		Logs:      w.Logs,
		Sources:   w.Src,
		Prefix:    prefix,
		TmpBuild:  tmp,
		Source:    prefix,
	}, nil
}

// LogPath returns the step's private log file, one per step per run.
func (d Dirs) LogPath() string {
	return filepath.Join(d.Logs, d.Name+".log")
}
