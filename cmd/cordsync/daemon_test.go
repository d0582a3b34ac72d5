package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/config"
	"tools.zach/dev/cordsync/internal/feed"
	"tools.zach/dev/cordsync/internal/logger"
	"tools.zach/dev/cordsync/internal/presence"
)

const testFeed = "/data/presence.json"

// fakePublisher records every update.
type fakePublisher struct {
	mu      sync.Mutex
	updates []*presence.Presence
	user    presence.User
}

func (f *fakePublisher) Update(p *presence.Presence, _ ...presence.UpdateOption) <-chan struct{} {
	f.mu.Lock()
	f.updates = append(f.updates, p)
	f.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakePublisher) User() presence.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakePublisher) last() *presence.Presence {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type daemonFixture struct {
	d   *daemon
	fs  afero.Fs
	pub *fakePublisher
	now time.Time
	log *bytes.Buffer
}

func newFixture(t *testing.T, mutate func(*config.Config)) *daemonFixture {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	f := &daemonFixture{
		fs:  afero.NewMemMapFs(),
		pub: &fakePublisher{user: presence.UnknownUser},
		now: time.Unix(1_760_000_000, 0),
		log: &bytes.Buffer{},
	}
	if err := f.fs.MkdirAll("/data", 0o755); err != nil {
		t.Fatal(err)
	}
	f.d = newDaemon(cfg, f.fs, testFeed, f.pub, slog.New(logger.NewHandler(f.log, logger.LevelDebug)))
	f.d.now = func() time.Time { return f.now }
	f.d.lastActive = f.now
	return f
}

func (f *daemonFixture) write(t *testing.T, doc *feed.Document) {
	t.Helper()
	if err := feed.Write(f.fs, testFeed, doc); err != nil {
		t.Fatalf("feed.Write: %v", err)
	}
}

// ///////////////////////////////////////////////
// current / sync Tests
// ///////////////////////////////////////////////

func TestDaemon_MissingFeedClears(t *testing.T) {
	f := newFixture(t, nil)
	f.d.sync()
	if f.pub.count() != 1 || f.pub.last() != nil {
		t.Errorf("updates = %d, last = %+v, want one nil update", f.pub.count(), f.pub.last())
	}
}

func TestDaemon_PublishesFeed(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, &feed.Document{
		UpdatedAt: f.now.Unix(),
		Presence:  presence.Presence{AppID: "42", Details: "Editing main.go"},
	})

	f.d.sync()
	got := f.pub.last()
	if got == nil || got.AppID != "42" || got.Details != "Editing main.go" {
		t.Fatalf("published %+v", got)
	}
	if !strings.Contains(f.log.String(), "presence published") {
		t.Errorf("log = %q", f.log.String())
	}
}

func TestDaemon_FillsConfiguredAppID(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Discord.AppID = "777" })
	f.write(t, &feed.Document{Presence: presence.Presence{Details: "no app id"}})

	f.d.sync()
	if got := f.pub.last(); got == nil || got.AppID != "777" {
		t.Errorf("published %+v, want app id 777", got)
	}
}

func TestDaemon_StoppedClears(t *testing.T) {
	f := newFixture(t, nil)
	f.write(t, &feed.Document{Presence: presence.Presence{AppID: "1"}})
	f.d.sync()

	f.write(t, &feed.Document{Stopped: true, Presence: presence.Presence{AppID: "1"}})
	f.d.sync()

	if f.pub.last() != nil {
		t.Errorf("published %+v, want nil", f.pub.last())
	}
	if !strings.Contains(f.log.String(), "presence cleared") {
		t.Errorf("log = %q", f.log.String())
	}
}

func TestDaemon_StaleFeedClears(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Behavior.PresenceIdleMinutes = 5 })
	f.write(t, &feed.Document{
		UpdatedAt: f.now.Add(-10 * time.Minute).Unix(),
		Presence:  presence.Presence{AppID: "1", Details: "old"},
	})

	f.d.sync()
	if f.pub.last() != nil {
		t.Errorf("stale feed published %+v", f.pub.last())
	}
}

func TestDaemon_StaleCheckDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Behavior.PresenceIdleMinutes = 0 })
	f.write(t, &feed.Document{
		UpdatedAt: f.now.Add(-48 * time.Hour).Unix(),
		Presence:  presence.Presence{AppID: "1", Details: "old"},
	})

	f.d.sync()
	if f.pub.last() == nil {
		t.Error("feed should publish when the idle check is disabled")
	}
}

func TestDaemon_CorruptedFeed(t *testing.T) {
	f := newFixture(t, nil)
	if err := afero.WriteFile(f.fs, testFeed, []byte(`{"appId":`), 0o600); err != nil {
		t.Fatal(err)
	}

	f.d.sync()
	if f.pub.last() != nil {
		t.Errorf("corrupted feed published %+v", f.pub.last())
	}
	if !strings.Contains(f.log.String(), "corrupted") {
		t.Errorf("log = %q", f.log.String())
	}
}

func TestDaemon_LogsUserOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.user = presence.User{ID: "1", Username: "zach"}

	f.d.sync()
	f.d.sync()
	if n := strings.Count(f.log.String(), "signed in to Discord"); n != 1 {
		t.Errorf("user logged %d times, want 1", n)
	}
}

// ///////////////////////////////////////////////
// idleExpired Tests
// ///////////////////////////////////////////////

func TestDaemon_IdleExpired(t *testing.T) {
	tests := []struct {
		name       string
		idle       int
		elapsed    time.Duration
		publishing bool
		want       bool
	}{
		{"disabled", 0, 24 * time.Hour, false, false},
		{"not yet", 30, 10 * time.Minute, false, false},
		{"expired", 30, 31 * time.Minute, false, true},
		{"publishing keeps alive", 30, 31 * time.Minute, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) { c.Behavior.DaemonIdleMinutes = tt.idle })
			f.d.publishing = tt.publishing
			f.now = f.now.Add(tt.elapsed)
			if got := f.d.idleExpired(); got != tt.want {
				t.Errorf("idleExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// run Tests
// ///////////////////////////////////////////////

func TestDaemon_RunSyncsOnEventsUntilSignal(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Behavior.PollIntervalSeconds = 3600 })
	events := make(chan struct{})
	signals := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		f.d.run(context.Background(), events, signals)
		close(done)
	}()

	// The unbuffered sends return once the loop has taken each event.
	events <- struct{}{}
	events <- struct{}{}
	signals <- os.Interrupt

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after signal")
	}
	// The initial sync plus one per event. Each event's sync completes
	// before the loop can select the signal.
	if n := f.pub.count(); n != 3 {
		t.Errorf("updates = %d, want 3", n)
	}
}

func TestDaemon_RunStopsOnContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		f.d.run(ctx, nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
