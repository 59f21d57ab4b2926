// Package download fetches source archives over HTTP with bounded retries
// and verifies them against configured checksums and detached signatures.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/twangboy/relative-environment-for-python/internal/ctxlog"
)

// fetchAttempts bounds how many times a transient fetch error is retried
// before the download is declared failed.
const fetchAttempts = 3

// ErrChecksumMismatch is returned when a configured checksum does not match
// the fetched content. It is a hard failure: the owning step must abort.
var ErrChecksumMismatch = errors.New("md5 checksum verification failed")

// Download describes one remote artifact. The URL template may contain a
// {version} placeholder which is resolved against Version.
type Download struct {
	Name        string
	URLTemplate string
	Version     string
	Destination string

	// Signature is an optional path or URL of a detached gpg signature.
	Signature string
	// MD5 is an optional hex digest the fetched content must match.
	MD5 string
}

// URL resolves the version placeholder in the template.
func (d *Download) URL() string {
	return strings.ReplaceAll(d.URLTemplate, "{version}", d.Version)
}

// FilePath is the deterministic local location of the fetched artifact:
// destination directory plus the remote basename. Re-fetching overwrites it.
func (d *Download) FilePath() string {
	url := d.URL()
	return filepath.Join(d.Destination, url[strings.LastIndex(url, "/")+1:])
}

// Exists reports whether the artifact is already on disk.
func (d *Download) Exists() bool {
	_, err := os.Stat(d.FilePath())
	return err == nil
}

// Fetch retrieves the remote resource into the destination directory,
// retrying transient errors with increasing backoff before giving up. A
// partially written file is removed on failure.
func (d *Download) Fetch(ctx context.Context) (string, error) {
	logger := ctxlog.FromContext(ctx).With("download", d.Name)

	if err := os.MkdirAll(d.Destination, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	client := resty.New().
		SetRetryCount(fetchAttempts - 1).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryConditions(func(res *resty.Response, err error) bool {
			return err != nil || res.StatusCode() >= 500
		})
	defer client.Close()

	logger.Debug("Fetching remote resource.", "url", d.URL())
	res, err := client.R().SetContext(ctx).Get(d.URL())
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", d.URL(), err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fetching %s: unexpected status %s", d.URL(), res.Status())
	}

	local := d.FilePath()
	if err := os.WriteFile(local, res.Bytes(), 0o644); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("writing %s: %w", local, err)
	}
	logger.Debug("Fetch complete.", "path", local, "bytes", len(res.Bytes()))
	return local, nil
}

// VerifyChecksum compares the file's MD5 digest against the given hex
// digest. A missing digest is a soft failure: it is logged and reported as
// false without an error. A mismatch returns ErrChecksumMismatch.
func VerifyChecksum(ctx context.Context, path, checksum string) (bool, error) {
	logger := ctxlog.FromContext(ctx)
	if checksum == "" {
		logger.Error("Can't verify checksum because none was given.", "path", path)
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s for checksum: %w", path, err)
	}
	sum := md5.Sum(data)
	if hex.EncodeToString(sum[:]) != checksum {
		return false, fmt.Errorf("%s: %w", path, ErrChecksumMismatch)
	}
	return true, nil
}

// verifySignature validates the artifact against its detached signature via
// an external gpg invocation. Failures are logged and reduce validity; they
// never abort the download.
func (d *Download) verifySignature(ctx context.Context, path string) bool {
	logger := ctxlog.FromContext(ctx).With("download", d.Name)
	if d.Signature == "" {
		logger.Error("Can't check signature because none was given.", "path", path)
		return false
	}
	cmd := exec.CommandContext(ctx, "gpg", "--verify", d.Signature, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Error("Signature validation failed.", "path", path, "error", err, "output", string(out))
		return false
	}
	return true
}

// Verify runs every configured check against the fetched artifact. It
// reports true only when all configured checks passed. Soft failures
// (signature) return false without an error; a checksum mismatch is a hard
// error.
func (d *Download) Verify(ctx context.Context) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("download", d.Name)
	valid := true
	if d.Signature != "" {
		valid = d.verifySignature(ctx, d.FilePath()) && valid
	}
	if d.MD5 != "" {
		ok, err := VerifyChecksum(ctx, d.FilePath(), d.MD5)
		if err != nil {
			return false, err
		}
		valid = ok && valid
	}
	logger.Debug("Verification finished.", "valid", valid, "md5", d.MD5)
	return valid, nil
}

// Do fetches and verifies in one shot. Any hard error or failed configured
// check makes the download fail.
func (d *Download) Do(ctx context.Context) error {
	if _, err := d.Fetch(ctx); err != nil {
		return err
	}
	valid, err := d.Verify(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("validation failed for download %s", d.Name)
	}
	return nil
}
