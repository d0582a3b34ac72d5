package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/config"
	"tools.zach/dev/cordsync/internal/diagnose"
	"tools.zach/dev/cordsync/internal/extensions"
	"tools.zach/dev/cordsync/internal/logger"
)

func TestExpandHome(t *testing.T) {
	home := filepath.Join("home", "u")
	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/ext", filepath.Join(home, "ext")},
		{"/abs/ext", "/abs/ext"},
		{"~other/ext", "~other/ext"},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in, home); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiagnoseEnv(t *testing.T) {
	home := t.TempDir()
	discard := slog.New(slog.DiscardHandler)

	t.Run("defaults", func(t *testing.T) {
		env := diagnoseEnv(config.DefaultConfig(), home, discard)
		reg, ok := env.Extensions.(extensions.Registry)
		if !ok {
			t.Fatalf("Extensions = %T, want extensions.Registry", env.Extensions)
		}
		if !reflect.DeepEqual(reg.Dirs, extensions.DefaultDirs(home)) {
			t.Errorf("Dirs = %v", reg.Dirs)
		}
		if env.ConflictingIDs != nil {
			t.Errorf("ConflictingIDs = %v, want nil (built-in list)", env.ConflictingIDs)
		}
		if env.Platform != diagnose.DetectPlatform() {
			t.Errorf("Platform = %v", env.Platform)
		}
	})

	t.Run("configured", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Diagnose.ExtensionDirs = []string{"~/ide/plugins", "/opt/ext"}
		cfg.Diagnose.ConflictingIDs = []string{"a.b"}

		env := diagnoseEnv(cfg, home, discard)
		reg := env.Extensions.(extensions.Registry)
		want := []string{filepath.Join(home, "ide", "plugins"), "/opt/ext"}
		if !reflect.DeepEqual(reg.Dirs, want) {
			t.Errorf("Dirs = %v, want %v", reg.Dirs, want)
		}
		if !reflect.DeepEqual(env.ConflictingIDs, []string{"a.b"}) {
			t.Errorf("ConflictingIDs = %v", env.ConflictingIDs)
		}
	})
}

type staticExtensions []string

func (s staticExtensions) IDs() ([]string, error) { return s, nil }

func TestLogReport(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(&buf, logger.LevelInfo))

	svc := diagnose.NewService(diagnose.Env{
		Platform:   diagnose.PlatformOther,
		Fs:         afero.NewMemMapFs(),
		Extensions: staticExtensions{"icrawl.discord-vscode"},
		Getenv:     func(string) string { return "" },
	}, diagnose.WithLogger(slog.New(slog.DiscardHandler)))

	logReport(context.Background(), svc, "cordsync", log)

	out := buf.String()
	if !strings.Contains(out, "[WARN] presence may not appear") {
		t.Errorf("missing issue warning: %q", out)
	}
	if !strings.Contains(out, "integrations=one") {
		t.Errorf("missing report summary: %q", out)
	}
}

func TestRenderReport(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		out := renderReport(diagnose.Report{}, "cordsync")
		for _, want := range []string{"cordsync environment", "Discord", "other", "none", "No problems found."} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("issues", func(t *testing.T) {
		out := renderReport(diagnose.Report{
			Client:       diagnose.ClientClosed,
			Integrations: diagnose.IntegrationsMultiple,
		}, "cordsync")
		for _, want := range []string{"closed", "multiple", "- Discord is not running.", "- Several Discord"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "No problems found.") {
			t.Error("unhealthy report claims no problems")
		}
	})
}
