// Package logger writes cordsync's log file.
//
// Every line names the component that logged it and, when known, the Discord
// application the record concerns:
//
//	2006-01-02T15:04:05.000Z [INFO] presence: connected to chat client | app_id=1234, user=zach
//
// Components are attached with [ForComponent]; an "app_id" attribute, whether
// pre-applied or on the record, is always printed first.
package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Attribute keys the handler lifts out of the key=value list.
const (
	KeyComponent = "component"
	KeyAppID     = "app_id"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

// LevelTrace sits below debug and logs every frame on the IPC socket.
const LevelTrace slog.Level = -8

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a log.level config value to a slog level. Unknown values
// yield info; config validation rejects them before this is reached.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler formats records as single lines. Handlers derived through
// WithAttrs and WithGroup share the writer lock.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Level

	component string
	appID     string
	attrs     []slog.Attr
	group     string
}

// NewHandler creates a Handler that writes to w, dropping records below level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	if h.component != "" {
		buf.WriteString(h.component)
		buf.WriteString(": ")
	}
	buf.WriteString(r.Message)

	appID := h.appID
	rest := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	rest = append(rest, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == KeyAppID && h.group == "" {
			appID = a.Value.String()
			return true
		}
		rest = append(rest, h.qualify(a))
		return true
	})

	sep := " | "
	if appID != "" {
		buf.WriteString(sep)
		buf.WriteString(KeyAppID + "=" + appID)
		sep = ", "
	}
	for _, a := range rest {
		buf.WriteString(sep)
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		sep = ", "
	}
	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

// WithAttrs captures component and app_id; other attributes are printed on
// every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		switch {
		case a.Key == KeyComponent && h.group == "":
			if next.component == "" {
				next.component = a.Value.String()
			} else {
				next.component += "." + a.Value.String()
			}
		case a.Key == KeyAppID && h.group == "":
			next.appID = a.Value.String()
		default:
			next.attrs = append(next.attrs, h.qualify(a))
		}
	}
	return &next
}

// WithGroup prefixes later keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if next.group != "" {
		next.group += "." + name
	} else {
		next.group = name
	}
	return &next
}

// ///////////////////////////////////////////////
// Constructors
// ///////////////////////////////////////////////

// Options tunes [NewLogger].
type Options struct {
	// MaxSizeMB is the rotation threshold of the log file.
	MaxSizeMB int
	// Tee receives a copy of every line when set (stderr in foreground mode).
	Tee io.Writer
}

// NewLogger returns a logger writing to a rotating file at logPath. The
// closer flushes and closes the file.
func NewLogger(logPath string, minLevel slog.Level, opts Options) (*slog.Logger, io.Closer, error) {
	if logPath == "" {
		return nil, nil, fmt.Errorf("logger: empty log path")
	}
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Tee != nil {
		w = io.MultiWriter(lj, opts.Tee)
	}
	return slog.New(NewHandler(w, minLevel)), lj, nil
}

// ForComponent returns a child of logger whose lines are prefixed with name.
// Nested components are joined with a dot. A nil logger falls back to
// [slog.Default].
func ForComponent(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(KeyComponent, name)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// ReadTail returns the last n lines of the log at path, oldest first.
func ReadTail(fsys afero.Fs, path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var tail []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tail = append(tail, strings.TrimRight(scanner.Text(), "\r"))
		if len(tail) > 2*n {
			tail = append(tail[:0], tail[len(tail)-n:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	return strings.Join(tail, "\n"), nil
}
