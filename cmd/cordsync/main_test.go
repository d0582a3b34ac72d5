package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	rootpkg "tools.zach/dev/cordsync"
	"tools.zach/dev/cordsync/internal/paths"
)

// ///////////////////////////////////////////////
// resolveVersion Tests
// ///////////////////////////////////////////////

func TestResolveVersionWithLdflags(t *testing.T) {
	original := version
	defer func() { version = original }()

	version = "1.2.3"
	if got := resolveVersion(); got != "1.2.3" {
		t.Errorf("resolveVersion() = %q, want %q", got, "1.2.3")
	}
}

func TestResolveVersionDev(t *testing.T) {
	// Test binaries may or may not carry VCS info.
	original := version
	defer func() { version = original }()

	version = "dev"
	if got := resolveVersion(); !strings.HasPrefix(got, "dev") {
		t.Errorf("resolveVersion() = %q, expected to start with 'dev'", got)
	}
}

// ///////////////////////////////////////////////
// parseFlags Tests
// ///////////////////////////////////////////////

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		def     string
		want    options
		wantErr bool
	}{
		{"defaults", nil, "/home/u/.cordsync", options{dataDir: "/home/u/.cordsync"}, false},
		{"diagnose", []string{"-diagnose"}, "/d", options{dataDir: "/d", diagnose: true}, false},
		{"foreground and dir", []string{"-foreground", "-data-dir", "/x"}, "/d", options{dataDir: "/x", foreground: true}, false},
		{"logs", []string{"-logs", "20"}, "/d", options{dataDir: "/d", logLines: 20}, false},
		{"version", []string{"-version"}, "/d", options{dataDir: "/d", showVersion: true}, false},
		{"no data dir", nil, "", options{}, true},
		{"unknown flag", []string{"-bogus"}, "/d", options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, tt.def)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseFlags = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// seedConfig Tests
// ///////////////////////////////////////////////

func TestSeedConfig_WritesDefault(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := paths.DataDir{Root: "/data"}

	if err := seedConfig(fsys, dir); err != nil {
		t.Fatalf("seedConfig: %v", err)
	}
	got, err := afero.ReadFile(fsys, dir.Config())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !bytes.Equal(got, rootpkg.DefaultConfigTOML) {
		t.Error("seeded config differs from embedded default")
	}
}

func TestSeedConfig_KeepsExisting(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := paths.DataDir{Root: "/data"}
	if err := afero.WriteFile(fsys, dir.Config(), []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := seedConfig(fsys, dir); err != nil {
		t.Fatalf("seedConfig: %v", err)
	}
	got, _ := afero.ReadFile(fsys, dir.Config())
	if !strings.Contains(string(got), "debug") {
		t.Errorf("existing config overwritten: %q", got)
	}
}

// ///////////////////////////////////////////////
// run Tests
// ///////////////////////////////////////////////

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(options{showVersion: true}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "cordsync ") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_Logs(t *testing.T) {
	dir := t.TempDir()
	logPath := paths.DataDir{Root: dir}.Log()
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(options{dataDir: dir, logLines: 2}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "two\nthree" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRun_LogsMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(options{dataDir: filepath.Join(t.TempDir(), "none"), logLines: 5}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "read log") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := paths.DataDir{Root: dir}.Config()
	if err := os.WriteFile(cfgPath, []byte("[log]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(options{dataDir: dir}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "load config") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
