// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "cordsync.pid"
	ConfigFile = "config.toml"
	LogFile    = "cordsync.log"
	FeedFile   = "presence.json"
)

const (
	BinaryName = "cordsync"
	DataDirRel = ".cordsync" // relative to $HOME
	// DataDirEnv overrides the data directory location.
	DataDirEnv = "CORDSYNC_DATA_DIR"
)

// ReleaseManifest is the repo-relative path of the release manifest.
const ReleaseManifest = ".release-manifest.json"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default resolves the data directory from CORDSYNC_DATA_DIR, falling back
// to ~/.cordsync.
func Default() (DataDir, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return DataDir{Root: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, err
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Feed returns the full path to the presence feed written by editor plugins.
func (d DataDir) Feed() string { return filepath.Join(d.Root, FeedFile) }
