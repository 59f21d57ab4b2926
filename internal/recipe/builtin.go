package recipe

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/twangboy/relative-environment-for-python/internal/workdir"
)

// killGrace bounds how long a step's external tooling gets between context
// cancellation and a hard kill.
const killGrace = 100 * time.Millisecond

// RunCmd runs one external build command inside the step's source directory
// with the step's environment, sending stdout and stderr to the step log.
// A non-zero exit is returned as an error.
func RunCmd(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dirs.Source
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.WaitDelay = killGrace
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	fmt.Fprintf(logf, "Running: %s %s\n", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build cmd %q failed: %w", name+" "+strings.Join(args, " "), err)
	}
	return nil
}

// DefaultBuild is the generic configure, compile, install sequence used when
// a step registers no build function of its own.
func DefaultBuild(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
	configure := []string{"--prefix=" + dirs.Prefix}
	if strings.Contains(env["RELENV_HOST"], "linux") {
		configure = append(configure,
			"--build=x86_64-linux-gnu",
			"--host="+env["RELENV_HOST"],
		)
	}
	if err := RunCmd(ctx, env, dirs, logf, "./configure", configure...); err != nil {
		return err
	}
	if err := RunCmd(ctx, env, dirs, logf, "make", "-j"+fmt.Sprint(runtime.NumCPU())); err != nil {
		return err
	}
	return RunCmd(ctx, env, dirs, logf, "make", "install")
}

// BuildOpenSSL drives openssl's Configure script, which names its targets by
// platform and architecture instead of taking a host triplet.
func BuildOpenSSL(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
	plat := "linux"
	if strings.Contains(env["RELENV_HOST"], "macos") {
		plat = "darwin64"
	}
	arch := env["RELENV_ARCH"]
	if plat == "darwin64" && arch == "x86_64" {
		arch = "x86_64-cc"
	}
	if err := RunCmd(ctx, env, dirs, logf, "./Configure",
		fmt.Sprintf("%s-%s", plat, arch),
		"no-idea",
		"shared",
		"--prefix="+dirs.Prefix,
		"--openssldir=/tmp/ssl",
	); err != nil {
		return err
	}
	if err := RunCmd(ctx, env, dirs, logf, "make", "-j"+fmt.Sprint(runtime.NumCPU())); err != nil {
		return err
	}
	return RunCmd(ctx, env, dirs, logf, "make", "install_sw")
}

// BuildSQLite builds sqlite with a threadsafe shared-only configuration.
func BuildSQLite(ctx context.Context, env map[string]string, dirs workdir.Dirs, logf io.Writer) error {
	configure := []string{
		"--with-shared",
		"--without-static",
		"--enable-threadsafe",
		"--disable-readline",
		"--disable-dependency-tracking",
		"--prefix=" + dirs.Prefix,
	}
	if strings.Contains(env["RELENV_HOST"], "linux") {
		configure = append(configure,
			"--build=x86_64-linux-gnu",
			"--host="+env["RELENV_HOST"],
		)
	}
	if err := RunCmd(ctx, env, dirs, logf, "./configure", configure...); err != nil {
		return err
	}
	if err := RunCmd(ctx, env, dirs, logf, "make", "-j"+fmt.Sprint(runtime.NumCPU())); err != nil {
		return err
	}
	return RunCmd(ctx, env, dirs, logf, "make", "install")
}

// Builtins maps the build function names usable in recipe manifests to their
// implementations.
func Builtins() map[string]BuildFunc {
	return map[string]BuildFunc{
		"default": DefaultBuild,
		"openssl": BuildOpenSSL,
		"sqlite":  BuildSQLite,
	}
}
