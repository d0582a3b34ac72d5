// write_test.go covers [Write] on a real directory and on an in-memory
// filesystem, plus temp-file cleanup and [Backup].

package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteOsFs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presence.json")
	fsys := afero.NewOsFs()

	if err := Write(fsys, path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(fsys, path, []byte(`{"a":2}`), 0o600); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Fatalf("got %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteMemFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/data", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Write(fsys, "/data/config.toml", []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := afero.ReadFile(fsys, "/data/config.toml")
	if err != nil || string(got) != "x = 1\n" {
		t.Fatalf("got %q, %v", got, err)
	}
	info, err := fsys.Stat("/data/config.toml")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("perm = %v", info.Mode().Perm())
	}
}

func TestWriteFailureLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	// Renaming a file over a non-empty directory fails on every platform.
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Write(afero.NewOsFs(), target, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error writing over a directory")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestBackup(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dst, err := Backup(fsys, "/data/presence.json", ".corrupted", []byte("{bad"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if dst != "/data/presence.json.corrupted" {
		t.Errorf("dst = %q", dst)
	}
	got, _ := afero.ReadFile(fsys, dst)
	if string(got) != "{bad" {
		t.Errorf("backup = %q", got)
	}
}
