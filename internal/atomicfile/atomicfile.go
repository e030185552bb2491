// Package atomicfile writes files so readers only ever see complete content.
//
// Pattern: temp file -> write -> fsync -> close -> rename. On any failure the
// temp file is removed and the destination is left untouched.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// RenameFunc moves a finished temp file onto its destination
type RenameFunc func(oldpath, newpath string) error

// Write stores data at path, staging it in tmpDir.
// tmpDir must live on the same filesystem as path for the rename to be atomic.
// An empty tmpDir stages next to the destination; a nil rename uses os.Rename.
func Write(tmpDir, path string, data []byte, rename RenameFunc) error {
	if rename == nil {
		rename = os.Rename
	}
	dir := filepath.Dir(path)
	if tmpDir == "" {
		tmpDir = dir
	}
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return fmt.Errorf("creating temp directory %s: %w", tmpDir, err)
	}

	f, err := os.CreateTemp(tmpDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}

	syncDir(dir)
	return nil
}

// syncDir makes the rename durable; not every platform supports it, so errors are ignored
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
