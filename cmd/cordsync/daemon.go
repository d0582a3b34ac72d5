package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/config"
	"tools.zach/dev/cordsync/internal/feed"
	"tools.zach/dev/cordsync/internal/presence"
)

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// publisher is the part of [presence.Syncer] the daemon drives.
type publisher interface {
	Update(p *presence.Presence, opts ...presence.UpdateOption) <-chan struct{}
	User() presence.User
}

// daemon turns feed file changes into presence updates.
type daemon struct {
	cfg      *config.Config
	fs       afero.Fs
	feedPath string
	pub      publisher
	log      *slog.Logger
	now      func() time.Time

	// lastActive is the last time a presence was published, or the start
	// time. It drives the daemon idle timeout.
	lastActive time.Time
	// publishing is true while the last update carried a presence.
	publishing bool
	// user is the account name last logged, so changes are logged once.
	user string
}

func newDaemon(cfg *config.Config, fsys afero.Fs, feedPath string, pub publisher, log *slog.Logger) *daemon {
	d := &daemon{
		cfg:      cfg,
		fs:       fsys,
		feedPath: feedPath,
		pub:      pub,
		log:      log,
		now:      time.Now,
	}
	d.lastActive = d.now()
	return d
}

// current reads the feed and resolves the presence to publish. It returns
// nil when the feed is missing, stopped, stale, or unreadable.
func (d *daemon) current() *presence.Presence {
	doc, err := feed.Read(d.fs, d.feedPath)
	if err != nil {
		if errors.Is(err, feed.ErrCorrupted) {
			d.log.Warn("presence feed was corrupted and has been reset", "path", d.feedPath, "error", err)
		} else {
			d.log.Debug("presence feed not readable", "error", err)
		}
		return nil
	}

	p := doc.Activity()
	if p == nil {
		return nil
	}
	if idle := d.cfg.PresenceIdle(); idle > 0 {
		if updated := doc.Updated(); !updated.IsZero() && d.now().Sub(updated) > idle {
			d.log.Debug("presence feed is stale", "updated", updated, "idle", idle)
			return nil
		}
	}
	if p.AppID == "" {
		p.AppID = d.cfg.Discord.AppID
	}
	return p
}

// sync publishes the current feed state. The syncer drops unchanged
// presences, so calling it on every tick is cheap.
func (d *daemon) sync() {
	p := d.current()
	d.pub.Update(p)

	active := p.HasIdentity()
	if active {
		d.lastActive = d.now()
	}
	if active != d.publishing {
		if active {
			d.log.Info("presence published", "app_id", p.AppID, "details", p.Details)
		} else {
			d.log.Info("presence cleared")
		}
		d.publishing = active
	}

	if u := d.pub.User(); u.Known() && u.DisplayName() != d.user {
		d.user = u.DisplayName()
		d.log.Info("signed in to Discord", "user", d.user)
	}
}

// idleExpired reports whether the daemon idle timeout has elapsed. A zero
// timeout disables it.
func (d *daemon) idleExpired() bool {
	idle := d.cfg.DaemonIdle()
	if idle <= 0 || d.publishing {
		return false
	}
	return d.now().Sub(d.lastActive) > idle
}

// run is the event loop. It syncs on every feed event and poll tick and
// returns when ctx is done, a shutdown signal arrives, or the idle timeout
// fires.
func (d *daemon) run(ctx context.Context, events <-chan struct{}, signals <-chan os.Signal) {
	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	d.sync()
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			d.log.Info("received shutdown signal", "signal", sig)
			return
		case <-events:
			d.sync()
		case <-ticker.C:
			d.sync()
			if d.idleExpired() {
				d.log.Info("daemon idle timeout, exiting",
					"idle_minutes", int(d.now().Sub(d.lastActive).Minutes()))
				return
			}
		}
	}
}
