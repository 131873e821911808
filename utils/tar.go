package utils

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TarFile writes a tar archive holding src (a regular file) under its base name.
func TarFile(src string, w io.Writer) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("unable to tar files - %v", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("unable to tar %s: not a regular file", src)
	}

	tw := tar.NewWriter(w)

	header, err := tar.FileInfoHeader(fi, fi.Name())
	if err != nil {
		return fmt.Errorf("cannot create file header for %s: %v", src, err)
	}
	header.Name = filepath.Base(src)
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("cannot write file header for %s: %v", src, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("cannot write file %s: %v", src, err)
	}
	return tw.Close()
}
