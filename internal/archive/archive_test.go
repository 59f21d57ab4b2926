package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrefixFile(t *testing.T, prefix, rel, contents string) {
	t.Helper()
	path := filepath.Join(prefix, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
}

func TestCreateFiltersByGlobs(t *testing.T) {
	prefix := t.TempDir()
	writePrefixFile(t, prefix, "lib/x.so", "elf")
	writePrefixFile(t, prefix, "bin/python3", "elf")
	writePrefixFile(t, prefix, "share/doc.txt", "docs")

	archivePath := filepath.Join(t.TempDir(), "x86_64-linux-gnu.tar.xz")
	var log bytes.Buffer
	require.NoError(t, Create(archivePath, prefix, []string{"*.so", "/bin/py*"}, &log))

	// Every file gets exactly one logged decision.
	assert.Contains(t, log.String(), "Adding "+filepath.Join("lib", "x.so"))
	assert.Contains(t, log.String(), "Adding "+filepath.Join("bin", "python3"))
	assert.Contains(t, log.String(), "Skipping "+filepath.Join("share", "doc.txt"))

	dest := t.TempDir()
	require.NoError(t, Extract(archivePath, dest))
	assert.FileExists(t, filepath.Join(dest, "lib", "x.so"))
	assert.FileExists(t, filepath.Join(dest, "bin", "python3"))
	assert.NoFileExists(t, filepath.Join(dest, "share", "doc.txt"))
}

func TestGlobSemantics(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.so", "/lib/x.so", true},
		{"*.so", "/lib/x.so.1", false},
		{"/lib/*.so.*", "/lib/libssl.so.1.1", true},
		{"/bin/py*", "/bin/python3", true},
		{"/bin/py*", "/sbin/python3", false},
		{"/lib/python3.10/site-packages/*", "/lib/python3.10/site-packages/pip/main.py", true},
	}
	for _, tc := range cases {
		re, err := globToRegexp(tc.pattern)
		require.NoError(t, err)
		assert.Equal(t, tc.want, re.MatchString(tc.path), "pattern %q vs %q", tc.pattern, tc.path)
	}
}

func TestExtractRoundTrip(t *testing.T) {
	prefix := t.TempDir()
	writePrefixFile(t, prefix, "bin/run", "#!/bin/sh\n")
	writePrefixFile(t, prefix, "lib/liba.so", "elf")

	archivePath := filepath.Join(t.TempDir(), "build.tar.xz")
	var log bytes.Buffer
	require.NoError(t, Create(archivePath, prefix, []string{"*"}, &log))

	dest := t.TempDir()
	require.NoError(t, Extract(archivePath, dest))
	data, err := os.ReadFile(filepath.Join(dest, "bin", "run"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))
}

func TestCreatePreservesSymlinks(t *testing.T) {
	prefix := t.TempDir()
	writePrefixFile(t, prefix, "lib/libpython3.10.so.1.0", "elf")
	require.NoError(t, os.Symlink("libpython3.10.so.1.0", filepath.Join(prefix, "lib", "libpython3.10.so")))

	archivePath := filepath.Join(t.TempDir(), "x86_64-linux-gnu.tar.xz")
	var log bytes.Buffer
	require.NoError(t, Create(archivePath, prefix, []string{"*.so", "/lib/*.so.*"}, &log))

	dest := t.TempDir()
	require.NoError(t, Extract(archivePath, dest))

	target, err := os.Readlink(filepath.Join(dest, "lib", "libpython3.10.so"))
	require.NoError(t, err)
	assert.Equal(t, "libpython3.10.so.1.0", target)

	data, err := os.ReadFile(filepath.Join(dest, "lib", "libpython3.10.so.1.0"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(data))
}

// writeTar builds a plain tar file from prepared headers for extraction
// tests that need member types Create never emits.
func writeTar(t *testing.T, members func(tw *tar.Writer)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	members(tw)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractHardLink(t *testing.T) {
	archivePath := writeTar(t, func(tw *tar.Writer) {
		contents := []byte("int main() {}\n")
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "src/main.c", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(contents)),
		}))
		_, err := tw.Write(contents)
		require.NoError(t, err)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "src/alias.c", Typeflag: tar.TypeLink, Linkname: "src/main.c",
		}))
	})

	dest := t.TempDir()
	require.NoError(t, Extract(archivePath, dest))

	data, err := os.ReadFile(filepath.Join(dest, "src", "alias.c"))
	require.NoError(t, err)
	assert.Equal(t, "int main() {}\n", string(data))
}

func TestExtractRejectsUnsupportedMember(t *testing.T) {
	archivePath := writeTar(t, func(tw *tar.Writer) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "dev/pipe", Typeflag: tar.TypeFifo, Mode: 0o644,
		}))
	})

	err := Extract(archivePath, t.TempDir())
	assert.ErrorContains(t, err, "unsupported type")
}

func TestTopLevelDir(t *testing.T) {
	assert.Equal(t, "Python-3.10.9", TopLevelDir("/downloads/Python-3.10.9.tar.xz"))
	assert.Equal(t, "sqlite-autoconf-3390400", TopLevelDir("sqlite-autoconf-3390400.tgz"))
}
