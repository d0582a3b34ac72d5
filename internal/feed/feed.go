// Package feed reads the presence feed file that editors and scripts write
// to describe the current activity.
//
// The file is JSON with a schema version under "$version":
//
//	{"$version": 2, "appId": "1234", "details": "Editing main.go", "updatedAt": 1760000000}
//
// Older versions are migrated through [migrate.Feed] and rewritten in place.
// A file that cannot be parsed is backed up next to itself with a
// ".corrupted" suffix and replaced by a stopped document.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/atomicfile"
	"tools.zach/dev/cordsync/internal/migrate"
	"tools.zach/dev/cordsync/internal/paths"
	"tools.zach/dev/cordsync/internal/presence"
)

// FileName is the feed file's name inside the data directory.
const FileName = paths.FeedFile

// ErrCorrupted is returned when the feed file could not be parsed.
var ErrCorrupted = errors.New("corrupted feed file")

// ///////////////////////////////////////////////
// Document
// ///////////////////////////////////////////////

// Document is the on-disk feed schema.
type Document struct {
	Version int `json:"$version"`
	// Stopped clears the presence without removing the file.
	Stopped bool `json:"stopped,omitempty"`
	// UpdatedAt is the producer's last write in Unix seconds.
	UpdatedAt int64 `json:"updatedAt,omitempty"`

	presence.Presence
}

// Activity returns the presence the document describes, or nil when the
// producer has stopped.
func (d *Document) Activity() *presence.Presence {
	if d == nil || d.Stopped {
		return nil
	}
	p := d.Presence
	return &p
}

// Updated returns UpdatedAt as a time. The zero time means unknown.
func (d *Document) Updated() time.Time {
	if d == nil || d.UpdatedAt == 0 {
		return time.Time{}
	}
	return time.Unix(d.UpdatedAt, 0)
}

// ///////////////////////////////////////////////
// Read / Write
// ///////////////////////////////////////////////

// Read loads the feed at path. A missing file yields (nil, nil).
func Read(fsys afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}

	version, err := peekVersion(data)
	if err != nil {
		return recoverCorrupted(fsys, path, data, err)
	}

	migrated := false
	switch {
	case migrate.Feed.Pending(version):
		data, version, err = migrate.Feed.Run(data, version)
		if err != nil {
			return nil, err
		}
		migrated = true
	case migrate.Feed.Future(version):
		slog.Warn("feed file written by a newer version, reading best-effort",
			"path", path, "version", version, "current", migrate.Feed.CurrentVersion)
		if _, err := atomicfile.Backup(fsys, path, fmt.Sprintf(".v%d.bak", version), data); err != nil {
			slog.Warn("failed to back up feed file", "error", err)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return recoverCorrupted(fsys, path, data, err)
	}
	doc.Version = version

	if migrated {
		if err := Write(fsys, path, &doc); err != nil {
			slog.Warn("failed to save migrated feed file", "path", path, "error", err)
		}
	}
	return &doc, nil
}

// Write stores doc at path atomically, stamping the current schema version.
func Write(fsys afero.Fs, path string, doc *Document) error {
	out := *doc
	out.Version = migrate.Feed.CurrentVersion
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling feed: %w", err)
	}
	return atomicfile.Write(fsys, path, data, 0o600)
}

// peekVersion extracts $version, treating a missing field as version 1.
func peekVersion(data []byte) (int, error) {
	var partial struct {
		Version int `json:"$version"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return 0, err
	}
	if partial.Version == 0 {
		return 1, nil
	}
	return partial.Version, nil
}

// recoverCorrupted backs up the unreadable file and replaces it with a
// stopped document so producers start from a clean slate.
func recoverCorrupted(fsys afero.Fs, path string, data []byte, parseErr error) (*Document, error) {
	slog.Warn("corrupted feed file, backing up", "path", path, "error", parseErr)

	backup, err := atomicfile.Backup(fsys, path, ".corrupted", data)
	if err != nil {
		slog.Warn("failed to back up feed file", "path", backup, "error", err)
	}
	if err := Write(fsys, path, &Document{Stopped: true}); err != nil {
		slog.Warn("failed to reset feed file", "path", path, "error", err)
	}
	return nil, fmt.Errorf("%w (backed up to %s): %v", ErrCorrupted, backup, parseErr)
}
