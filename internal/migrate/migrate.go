// Package migrate upgrades versioned on-disk documents (config.toml,
// presence.json) one schema version at a time.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades raw document bytes to Version from the version before it.
type Migration struct {
	Version     int
	Description string
	Upgrade     func(data []byte) ([]byte, error)
}

// Registry tracks the schema of one document kind. Each kind has its own
// registry so versions advance independently.
type Registry struct {
	// Name labels log output, e.g. "config".
	Name           string
	CurrentVersion int
	Migrations     []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// Feed is the registry for the presence feed file.
var Feed = &Registry{Name: "feed", CurrentVersion: 2}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m. Registering the same version twice panics.
func (r *Registry) Register(m Migration) {
	if slices.ContainsFunc(r.Migrations, func(e Migration) bool { return e.Version == m.Version }) {
		panic(fmt.Sprintf("migrate: %s: duplicate migration version %d (%q)", r.Name, m.Version, m.Description))
	}
	r.Migrations = append(r.Migrations, m)
}

// Pending reports whether a document at fileVersion is older than the
// current schema.
func (r *Registry) Pending(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Future reports whether a document was written by a newer cordsync.
func (r *Registry) Future(fileVersion int) bool {
	return fileVersion > r.CurrentVersion
}

// Run applies, in version order, every migration newer than fromVersion and
// not newer than CurrentVersion. It returns the upgraded data and the
// version reached; on error the version is the last one applied.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	sorted := slices.SortedFunc(slices.Values(r.Migrations), func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})

	version := fromVersion
	for _, m := range sorted {
		if m.Version <= version || m.Version > r.CurrentVersion {
			continue
		}
		slog.Info("applying migration", "target", r.Name, "version", m.Version, "description", m.Description)
		next, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("%s migration to v%d failed: %w", r.Name, m.Version, err)
		}
		data, version = next, m.Version
	}
	return data, version, nil
}
