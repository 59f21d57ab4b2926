package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// DefaultArchiveGlobs selects what ends up in the packaged build: the
// interpreter, its standard library and site-packages, headers, and every
// shared object. Everything else built along the way stays behind.
var DefaultArchiveGlobs = []string{
	"/bin/python*",
	"/bin/pip*",
	"/lib/python3.10/site-packages/*",
	"/include/*",
	"*.so",
	"/lib/*.so.*",
	"*.a",
	"*.py",
	"*.dylib",
}

// Config holds all the necessary configuration for an App instance to run.
// It is assembled once at startup and treated as immutable afterwards.
type Config struct {
	// Root is the data directory holding downloads, sources, logs, builds,
	// and toolchains.
	Root string

	Arch     string
	Platform string

	// Steps restricts the run to a subset of registered steps. Empty means
	// every step.
	Steps []string

	// RecipesPath points at a directory of .hcl step manifests layered on
	// top of the built-in recipes. Optional.
	RecipesPath string

	Clean      bool
	NoDownload bool
	Cleanup    bool

	// CI disables the live status line and leaves only structured logs.
	CI bool

	LogLevel  string
	LogFormat string

	ArchiveGlobs        []string
	DownloadConcurrency int
}

// NewConfig validates the configuration and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		if data := os.Getenv("RELENV_DATA"); data != "" {
			cfg.Root = data
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolving data directory: %w", err)
			}
			cfg.Root = filepath.Join(home, ".local", "relenv")
		}
	}
	if cfg.Arch == "" {
		cfg.Arch = workdir.NativeArch()
	}
	if cfg.Platform == "" {
		cfg.Platform = runtime.GOOS
	}
	if _, err := workdir.Triplet(cfg.Arch, cfg.Platform); err != nil {
		return nil, err
	}
	if len(cfg.ArchiveGlobs) == 0 {
		cfg.ArchiveGlobs = DefaultArchiveGlobs
	}
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = 4
	}
	return &cfg, nil
}
