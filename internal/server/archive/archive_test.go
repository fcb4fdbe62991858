package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func readZip(t *testing.T, b []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = buf.String()
	}
	return out
}

func TestBuild_Contents(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":      "hello",
		"sub/b.txt":  "bee",
		"sub/deep/c": "see",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	var buf bytes.Buffer
	n, err := Build(root, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string]string{
		"a.txt":      "hello",
		"sub/b.txt":  "bee",
		"sub/deep/c": "see",
	}, readZip(t, buf.Bytes()))
}

func TestBuild_Deterministic(t *testing.T) {
	files := map[string]string{"x/1": "one", "y": "two"}

	r1, r2 := t.TempDir(), t.TempDir()
	writeTree(t, r1, files)
	writeTree(t, r2, files)
	// different permissions must not leak into the archive
	require.NoError(t, os.Chmod(filepath.Join(r2, "y"), 0o755))

	var b1, b2 bytes.Buffer
	_, err := Build(r1, &b1)
	require.NoError(t, err)
	_, err = Build(r2, &b2)
	require.NoError(t, err)

	assert.Equal(t, b1.Bytes(), b2.Bytes())
}

func TestBuild_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := Build(t.TempDir(), &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, readZip(t, buf.Bytes()))
}

func makeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	p := filepath.Join(t.TempDir(), "in.zip")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
	return p
}

func TestExtract(t *testing.T) {
	src := makeZip(t, map[string]string{
		"readme.md":  "# hi",
		"docs/":      "",
		"docs/a.txt": "a",
	})
	dest := t.TempDir()

	n, err := Extract(src, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := os.ReadFile(filepath.Join(dest, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(b))

	b, err = os.ReadFile(filepath.Join(dest, "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(b))
}

func TestExtract_DotDirectoryEntry(t *testing.T) {
	src := makeZip(t, map[string]string{
		"./":      "",
		"./x.txt": "x",
	})
	dest := t.TempDir()

	n, err := Extract(src, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := os.ReadFile(filepath.Join(dest, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
}

func TestExtract_FileNamedDot(t *testing.T) {
	src := makeZip(t, map[string]string{".": "x"})

	_, err := Extract(src, t.TempDir())
	require.ErrorIs(t, err, common.ErrPathEscape)
}

func TestExtract_ZipSlip(t *testing.T) {
	src := makeZip(t, map[string]string{"../evil.txt": "x"})
	parent := t.TempDir()
	dest := filepath.Join(parent, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	_, err := Extract(src, dest)
	require.ErrorIs(t, err, common.ErrPathEscape)

	_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtract_SkipsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "link"}
	hdr.SetMode(os.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("/etc/passwd"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	src := filepath.Join(t.TempDir(), "l.zip")
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o600))

	dest := t.TempDir()
	n, err := Extract(src, dest)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = os.Lstat(filepath.Join(dest, "link"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o600))

	_, err := Extract(p, t.TempDir())
	require.Error(t, err)
}
