// Package archive packages a finished install prefix into a compressed
// tarball filtered by a glob allow-list, and extracts source archives for
// build steps.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ulikunitz/xz"
)

// globToRegexp converts a shell-style pattern into an anchored regexp.
// Unlike path.Match, '*' crosses directory separators, so a pattern like
// "*.so" matches a shared object anywhere under the prefix.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Create walks the prefix tree and writes every file matching the glob
// allow-list into a new xz-compressed tar archive at path. Files are matched
// against their prefix-relative path rooted with a slash ("/bin/python3").
// The include/skip decision for every file is written to logf.
func Create(path, prefix string, globs []string, logf io.Writer) error {
	matchers := make([]*regexp.Regexp, 0, len(globs))
	for _, g := range globs {
		re, err := globToRegexp(g)
		if err != nil {
			return fmt.Errorf("bad archive pattern %q: %w", g, err)
		}
		matchers = append(matchers, re)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", path, err)
	}
	defer f.Close()

	xzw, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("starting xz stream: %w", err)
	}
	tw := tar.NewWriter(xzw)

	fmt.Fprintf(logf, "Creating archive %s\n", path)
	err = filepath.Walk(prefix, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(prefix, p)
		if err != nil {
			return err
		}
		rooted := "/" + filepath.ToSlash(rel)
		matched := false
		for _, re := range matchers {
			if re.MatchString(rooted) {
				matched = true
				break
			}
		}
		if !matched {
			fmt.Fprintf(logf, "Skipping %s\n", rel)
			return nil
		}
		fmt.Fprintf(logf, "Adding %s\n", rel)

		// Symlinks are stored as links. An install prefix always carries
		// them (lib/libpython3.10.so -> libpython3.10.so.1.0); copying the
		// target's bytes into a link-typed header corrupts the archive.
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", prefix, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return xzw.Close()
}

// Extract unpacks a tar-family archive into dir, picking the decompressor
// from the file extension (gz, xz, bz2, or plain tar).
func Extract(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(archivePath, "gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("reading gzip stream of %s: %w", archivePath, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(archivePath, "xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("reading xz stream of %s: %w", archivePath, err)
		}
		r = xzr
	case strings.HasSuffix(archivePath, "bz2"):
		r = bzip2.NewReader(f)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", archivePath, err)
		}
		target, err := sanitizePath(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			// Hard link names are relative to the archive root.
			linked, err := sanitizePath(dir, hdr.Linkname)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(linked, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("archive entry %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}
	}
}

// TopLevelDir returns the archive's basename with its tar-family extensions
// stripped, which by convention is the directory the archive unpacks into.
func TopLevelDir(archivePath string) string {
	name := filepath.Base(archivePath)
	if i := strings.Index(name, ".tar"); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// sanitizePath rejects entries that would escape the extraction root.
func sanitizePath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
		return "", fmt.Errorf("archive entry %q escapes extraction dir", name)
	}
	return target, nil
}
