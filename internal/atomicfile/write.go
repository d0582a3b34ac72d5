// Package atomicfile writes files so readers never observe a partial write:
// data goes to a sibling temp file that is synced and then renamed over the
// target.

package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Write replaces path with data on fsys. The temp file lives next to path so
// the final rename stays on one filesystem; it is removed if any step fails.
func Write(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	f, err := afero.TempFile(fsys, filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = fsys.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}

// Backup copies data to path+suffix, overwriting any previous backup.
// Backups are best-effort snapshots and are written directly.
func Backup(fsys afero.Fs, path, suffix string, data []byte) (string, error) {
	dst := path + suffix
	if err := afero.WriteFile(fsys, dst, data, 0o600); err != nil {
		return dst, fmt.Errorf("write backup: %w", err)
	}
	return dst, nil
}
