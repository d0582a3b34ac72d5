// Package config loads cordsync's configuration.
//
// Settings come from three layers, later layers winning:
//
//  1. built-in defaults ([DefaultConfig])
//  2. config.toml in the data directory
//  3. CORDSYNC_* environment variables (e.g. CORDSYNC_DISCORD_APP_ID)
//
// Boolean settings have no environment variable; set them in the file.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/afero"

	"tools.zach/dev/cordsync/internal/atomicfile"
	"tools.zach/dev/cordsync/internal/migrate"
	"tools.zach/dev/cordsync/internal/paths"
	"tools.zach/dev/cordsync/internal/update"
)

// DefaultDiscordAppID is the cordsync Discord application, used when the
// feed does not name one.
const DefaultDiscordAppID = "1425830721409220689"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CORDSYNC_"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config is the top-level configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version  int            `toml:"version"`
	Discord  DiscordConfig  `toml:"discord" envPrefix:"DISCORD_"`
	Host     HostConfig     `toml:"host" envPrefix:"HOST_"`
	Diagnose DiagnoseConfig `toml:"diagnose" envPrefix:"DIAGNOSE_"`
	Behavior BehaviorConfig `toml:"behavior" envPrefix:"BEHAVIOR_"`
	Update   UpdateConfig   `toml:"update" envPrefix:"UPDATE_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
}

// DiscordConfig holds connection settings.
type DiscordConfig struct {
	// AppID is used for feed documents that carry no appId.
	AppID string `toml:"app_id" env:"APP_ID"`
	// SendTimeoutMS bounds each SET_ACTIVITY write.
	SendTimeoutMS int `toml:"send_timeout_ms" env:"SEND_TIMEOUT_MS"`
	// LivenessIntervalSeconds is the delay between connection health checks.
	LivenessIntervalSeconds int `toml:"liveness_interval_seconds" env:"LIVENESS_INTERVAL_SECONDS"`
}

// HostConfig describes the application cordsync reports for.
type HostConfig struct {
	// Name is interpolated into diagnosis messages.
	Name string `toml:"name" env:"NAME"`
}

// DiagnoseConfig controls the environment diagnosis probes.
type DiagnoseConfig struct {
	Enabled bool `toml:"enabled"`
	// ExtensionDirs are scanned for competing integrations. Empty means the
	// VS Code family defaults under the home directory.
	ExtensionDirs []string `toml:"extension_dirs" env:"EXTENSION_DIRS"`
	// ConflictingIDs overrides the built-in list of competing extension IDs.
	ConflictingIDs []string `toml:"conflicting_ids" env:"CONFLICTING_IDS"`
}

// BehaviorConfig holds daemon behavior settings.
type BehaviorConfig struct {
	// PollIntervalSeconds is the feed polling interval when fsnotify is unavailable.
	PollIntervalSeconds int `toml:"poll_interval_seconds" env:"POLL_INTERVAL_SECONDS"`
	// PresenceIdleMinutes clears presence when the feed has not been updated
	// for this long. 0 disables.
	PresenceIdleMinutes int `toml:"presence_idle_minutes" env:"PRESENCE_IDLE_MINUTES"`
	// DaemonIdleMinutes exits the daemon after this long without presence. 0 disables.
	DaemonIdleMinutes int `toml:"daemon_idle_minutes" env:"DAEMON_IDLE_MINUTES"`
}

// UpdateConfig controls the release check at startup.
type UpdateConfig struct {
	Check       bool   `toml:"check"`
	ManifestURL string `toml:"manifest_url" env:"MANIFEST_URL"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level" env:"LEVEL"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb" env:"MAX_SIZE_MB"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			AppID:                   DefaultDiscordAppID,
			SendTimeoutMS:           1000,
			LivenessIntervalSeconds: 20,
		},
		Host: HostConfig{
			Name: "cordsync",
		},
		Diagnose: DiagnoseConfig{
			Enabled:        true,
			ExtensionDirs:  []string{},
			ConflictingIDs: []string{},
		},
		Behavior: BehaviorConfig{
			PollIntervalSeconds: 2,
			PresenceIdleMinutes: 15,
			DaemonIdleMinutes:   0,
		},
		Update: UpdateConfig{
			Check:       true,
			ManifestURL: update.DefaultManifestURL,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns the Config written to config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// SendTimeout returns Discord.SendTimeoutMS as a duration.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Discord.SendTimeoutMS) * time.Millisecond
}

// LivenessInterval returns Discord.LivenessIntervalSeconds as a duration.
func (c *Config) LivenessInterval() time.Duration {
	return time.Duration(c.Discord.LivenessIntervalSeconds) * time.Second
}

// PollInterval returns Behavior.PollIntervalSeconds as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Behavior.PollIntervalSeconds) * time.Second
}

// PresenceIdle returns the feed staleness limit, 0 when disabled.
func (c *Config) PresenceIdle() time.Duration {
	return time.Duration(c.Behavior.PresenceIdleMinutes) * time.Minute
}

// DaemonIdle returns the daemon idle limit, 0 when disabled.
func (c *Config) DaemonIdle() time.Duration {
	return time.Duration(c.Behavior.DaemonIdleMinutes) * time.Minute
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing, zero, or unparseable.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Loader reads config from a data directory. Fs and Environ are injectable
// for tests.
type Loader struct {
	Fs afero.Fs
	// Environ supplies environment variables; nil reads the process environment.
	Environ map[string]string
}

// Load reads dataDir/config.toml from the real filesystem and applies
// environment overrides.
func Load(dataDir string) (*Config, error) {
	return Loader{Fs: afero.NewOsFs()}.Load(dataDir)
}

// Load reads, migrates, overlays and validates the config. A missing file
// yields the defaults with environment overrides applied.
func (l Loader) Load(dataDir string) (*Config, error) {
	path := paths.DataDir{Root: dataDir}.Config()
	cfg := DefaultConfig()

	data, err := afero.ReadFile(l.Fs, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := l.decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// decode migrates data if needed and unmarshals it over cfg's defaults.
func (l Loader) decode(path string, data []byte, cfg *Config) error {
	version := PeekVersion(data)
	migrated := migrate.Config.Pending(version)
	if migrated {
		if _, err := atomicfile.Backup(l.Fs, path, ".bak", data); err != nil {
			slog.Warn("failed to write config backup", "error", err)
		}
		var err error
		data, _, err = migrate.Config.Run(data, version)
		if err != nil {
			return fmt.Errorf("migrate config: %w", err)
		}
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if migrated {
		if err := cfg.Save(l.Fs, path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return nil
}

// applyEnv parses CORDSYNC_* variables into an empty Config and merges the
// non-zero fields over cfg.
func (l Loader) applyEnv(cfg *Config) error {
	var overlay Config
	opts := env.Options{Prefix: EnvPrefix, Environment: l.Environ}
	if err := env.ParseWithOptions(&overlay, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge environment: %w", err)
	}
	return nil
}

// Save writes the config to path as TOML using an atomic write.
func (c *Config) Save(fsys afero.Fs, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(fsys, path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Discord.AppID != "" && !isSnowflake(c.Discord.AppID) {
		errs = append(errs, fmt.Errorf("invalid discord.app_id %q: must be a numeric Discord application ID", c.Discord.AppID))
	}
	if c.Discord.SendTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("send_timeout_ms must be > 0, got %d", c.Discord.SendTimeoutMS))
	}
	if c.Discord.LivenessIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("liveness_interval_seconds must be > 0, got %d", c.Discord.LivenessIntervalSeconds))
	}
	if strings.TrimSpace(c.Host.Name) == "" {
		errs = append(errs, errors.New("host.name must not be empty"))
	}
	if c.Behavior.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_seconds must be > 0, got %d", c.Behavior.PollIntervalSeconds))
	}
	if c.Behavior.PresenceIdleMinutes < 0 {
		errs = append(errs, fmt.Errorf("presence_idle_minutes must be >= 0, got %d", c.Behavior.PresenceIdleMinutes))
	}
	if c.Behavior.DaemonIdleMinutes < 0 {
		errs = append(errs, fmt.Errorf("daemon_idle_minutes must be >= 0, got %d", c.Behavior.DaemonIdleMinutes))
	}
	if c.Update.Check && c.Update.ManifestURL != "" &&
		!strings.HasPrefix(c.Update.ManifestURL, "https://") && !strings.HasPrefix(c.Update.ManifestURL, "http://") {
		errs = append(errs, fmt.Errorf("invalid update.manifest_url %q: must be an http(s) URL", c.Update.ManifestURL))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level))
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("max_size_mb must be > 0, got %d", c.Log.MaxSizeMB))
	}

	return errors.Join(errs...)
}

// isSnowflake reports whether s looks like a Discord ID.
func isSnowflake(s string) bool {
	if len(s) < 17 || len(s) > 20 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
