package utils

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestTarFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.java")
	AssertNil(t, os.WriteFile(src, []byte("class Foo {}\n"), 0644))

	var buf bytes.Buffer
	AssertNil(t, TarFile(src, &buf))

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	AssertNil(t, err)
	AssertEquals(t, "Foo.java", hdr.Name)
	content, err := io.ReadAll(tr)
	AssertNil(t, err)
	AssertEquals(t, "class Foo {}\n", string(content))

	_, err = tr.Next()
	AssertEquals(t, io.EOF, err)
}

func TestTarMissingFile(t *testing.T) {
	var buf bytes.Buffer
	AssertNonNil(t, TarFile(filepath.Join(t.TempDir(), "missing"), &buf))
}
