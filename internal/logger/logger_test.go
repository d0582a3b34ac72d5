package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// line logs one record through fn and returns it without the timestamp and
// line ending.
func line(t *testing.T, level slog.Level, fn func(l *slog.Logger)) string {
	t.Helper()
	var buf bytes.Buffer
	fn(slog.New(NewHandler(&buf, level)))
	out := strings.TrimRight(buf.String(), "\r\n")
	ts, rest, ok := strings.Cut(out, " ")
	if !ok {
		return out
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z", ts); err != nil {
		t.Errorf("timestamp %q: %v", ts, err)
	}
	return rest
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

func TestHandler_Format(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *slog.Logger)
		want string
	}{
		{
			name: "bare message",
			log:  func(l *slog.Logger) { l.Info("starting") },
			want: "[INFO] starting",
		},
		{
			name: "attributes",
			log:  func(l *slog.Logger) { l.Warn("retrying", "attempt", 2, "of", 3) },
			want: "[WARN] retrying | attempt=2, of=3",
		},
		{
			name: "component prefix",
			log:  func(l *slog.Logger) { ForComponent(l, "presence").Info("sent", "seq", 3) },
			want: "[INFO] presence: sent | seq=3",
		},
		{
			name: "nested components",
			log:  func(l *slog.Logger) { ForComponent(ForComponent(l, "diagnose"), "client").Debug("probing") },
			want: "[DEBUG] diagnose.client: probing",
		},
		{
			name: "app id printed first",
			log:  func(l *slog.Logger) { l.Info("connected", "user", "zach", KeyAppID, "1234") },
			want: "[INFO] connected | app_id=1234, user=zach",
		},
		{
			name: "record app id replaces pre-applied",
			log:  func(l *slog.Logger) { l.With(KeyAppID, "old").Info("switched", KeyAppID, "new") },
			want: "[INFO] switched | app_id=new",
		},
		{
			name: "pre-applied attrs precede record attrs",
			log: func(l *slog.Logger) {
				ForComponent(l, "discord").With(KeyAppID, "9", "pid", 7).Info("frame", "op", "PING")
			},
			want: "[INFO] discord: frame | app_id=9, pid=7, op=PING",
		},
		{
			name: "groups qualify keys",
			log:  func(l *slog.Logger) { l.WithGroup("diag").WithGroup("host").Info("done", "state", "snap", KeyAppID, "x") },
			want: "[INFO] done | diag.host.state=snap, diag.host.app_id=x",
		},
		{
			name: "trace level",
			log:  func(l *slog.Logger) { l.Log(t.Context(), LevelTrace, "frame received") },
			want: "[TRACE] frame received",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := line(t, LevelTrace, tt.log); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelWarn))

	logger.Info("dropped")
	logger.Warn("kept")

	if out := buf.String(); strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("output = %q", out)
	}
}

func TestHandler_WithGroupEmpty(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, LevelInfo)
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}

func TestHandler_ComponentsShareWriter(t *testing.T) {
	var buf bytes.Buffer
	root := slog.New(NewHandler(&buf, LevelInfo))
	loggers := []*slog.Logger{
		root,
		ForComponent(root, "presence"),
		ForComponent(root, "discord").With(KeyAppID, "1"),
	}

	var wg sync.WaitGroup
	for range 30 {
		for _, l := range loggers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.Info("tick")
			}()
		}
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	if len(lines) != 90 {
		t.Fatalf("got %d lines, want 90", len(lines))
	}
	for _, l := range lines {
		if !strings.Contains(l, "tick") {
			t.Errorf("interleaved line %q", l)
		}
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		name  string
	}{
		{"trace", LevelTrace, "TRACE"},
		{"DEBUG", LevelDebug, "DEBUG"},
		{"info", LevelInfo, "INFO"},
		{"Warn", LevelWarn, "WARN"},
		{"error", LevelError, "ERROR"},
		{"loud", LevelInfo, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
			}
			if levelName(got) != tt.name {
				t.Errorf("levelName(%d) = %q, want %q", got, levelName(got), tt.name)
			}
		})
	}
}

// ///////////////////////////////////////////////
// NewLogger
// ///////////////////////////////////////////////

func TestNewLogger_Tee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.log")
	var tee bytes.Buffer

	logger, closer, err := NewLogger(path, LevelInfo, Options{MaxSizeMB: 1, Tee: &tee})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	ForComponent(logger, "daemon").Debug("below level")
	ForComponent(logger, "daemon").Warn("both sinks", "n", 1)
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for name, out := range map[string]string{"file": string(data), "tee": tee.String()} {
		if !strings.Contains(out, "[WARN] daemon: both sinks | n=1") {
			t.Errorf("%s output = %q", name, out)
		}
		if strings.Contains(out, "below level") {
			t.Errorf("%s output contains filtered record", name)
		}
	}
}

func TestNewLogger_EmptyPath(t *testing.T) {
	if _, _, err := NewLogger("", LevelInfo, Options{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestForComponent_NilFallsBackToDefault(t *testing.T) {
	if ForComponent(nil, "x") == nil {
		t.Fatal("expected non-nil logger")
	}
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

func TestReadTail(t *testing.T) {
	var many strings.Builder
	for i := range 50 {
		many.WriteString("line")
		many.WriteString(string(rune('A' + i%26)))
		many.WriteString("\n")
	}

	tests := []struct {
		name    string
		content string
		n       int
		want    string
	}{
		{"last lines", "one\ntwo\nthree\nfour\n", 2, "three\nfour"},
		{"fewer than n", "one\ntwo\n", 10, "one\ntwo"},
		{"empty file", "", 5, ""},
		{"zero lines", "one\n", 0, ""},
		{"crlf endings", "one\r\ntwo\r\n", 1, "two"},
		{"no trailing newline", "one\ntwo", 1, "two"},
		{"long file", many.String(), 3, "lineV\nlineW\nlineX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if err := afero.WriteFile(fsys, "/data/cordsync.log", []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadTail(fsys, "/data/cordsync.log", tt.n)
			if err != nil {
				t.Fatalf("ReadTail: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadTail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadTail_MissingFile(t *testing.T) {
	if _, err := ReadTail(afero.NewMemMapFs(), "/data/cordsync.log", 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}
