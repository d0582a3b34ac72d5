package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is used when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher signals changes to the feed file. It watches the parent
// directory so atomic renames by producers are seen, and falls back to
// polling the file's modification time when fsnotify fails.
type Watcher struct {
	path string
	log  *slog.Logger
	// events is buffered to 1 so bursts of writes coalesce into one signal.
	events       chan struct{}
	done         chan struct{}
	once         sync.Once
	pollInterval time.Duration

	// mu guards fsw, which the watch goroutine clears on fallback.
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	polling atomic.Bool
}

// NewWatcher starts watching the feed file at path. pollInterval applies
// only in polling mode; non-positive means [DefaultPollInterval].
func NewWatcher(path string, pollInterval time.Duration, log *slog.Logger) *Watcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		path:         path,
		log:          log,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.fallback("fsnotify unavailable", err)
		return w
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		w.fallback("cannot watch feed directory", err)
		return w
	}

	w.fsw = fsw
	go w.watch(fsw)
	return w
}

// Events delivers one signal per burst of changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if cerr := w.fsw.Close(); cerr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", cerr)
			}
			w.fsw = nil
		}
	})
	return err
}

func (w *Watcher) fallback(reason string, err error) {
	w.log.Info(reason+", falling back to polling", "path", w.path, "error", err)
	w.polling.Store(true)
	go w.poll()
}

func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			if w.fsw == fsw {
				fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			select {
			case <-w.done:
			default:
				w.fallback("fsnotify error", err)
			}
			return
		}
	}
}

// poll stats the feed file and signals when its modification time or
// existence changes.
func (w *Watcher) poll() {
	lastMod, lastExists := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, exists := w.stat()
			if exists != lastExists || mod.After(lastMod) {
				lastMod, lastExists = mod, exists
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (time.Time, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// notify sends a signal unless one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
