package config

// FieldDoc annotates one config field in the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown above the field.
	Comment string
	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ConfigDocs maps dotted TOML paths (e.g. "discord.app_id") to their
// documentation. cmd/genconfig reads it when regenerating the default file.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Discord
	"discord": {
		Comment: "Environment overrides: CORDSYNC_DISCORD_APP_ID, CORDSYNC_DISCORD_SEND_TIMEOUT_MS,\nCORDSYNC_DISCORD_LIVENESS_INTERVAL_SECONDS",
	},
	"discord.app_id": {
		Comment: "Discord application used when the presence feed does not name one.\nCreate your own at https://discord.com/developers/applications for custom assets.",
	},
	"discord.send_timeout_ms": {
		Comment: "How long a single activity update may take before it is abandoned.\nA timed-out update is retried by the next liveness check.",
	},
	"discord.liveness_interval_seconds": {
		Comment: "Delay between connection health checks. A dead connection is\nreopened and the last activity resent.",
	},

	// Host
	"host.name": {
		Comment: "Display name used in diagnosis messages.",
		Alternatives: []string{
			`name = "my-editor-plugin"`,
		},
	},

	// Diagnose
	"diagnose.enabled": {
		Comment: "Probe the environment at startup and log why Rich Presence may not appear\n(Discord closed, Snap or Flatpak sandboxes, competing extensions).",
	},
	"diagnose.extension_dirs": {
		Comment: "Extension directories scanned for competing Rich Presence integrations.\nGlob patterns are expanded. Empty uses ~/.vscode/extensions, the Cursor, Windsurf\nand VSCodium equivalents, and the JetBrains plugin directories of every installed IDE.",
		Alternatives: []string{
			`extension_dirs = ["~/.vscode/extensions", "~/.local/share/JetBrains/*"]`,
		},
	},
	"diagnose.conflicting_ids": {
		Comment: "Extension IDs that publish their own Rich Presence. Empty uses the built-in list.",
		Alternatives: []string{
			`conflicting_ids = ["icrawl.discord-vscode", "leonardssh.vscord"]`,
		},
	},

	// Behavior
	"behavior.poll_interval_seconds": {
		Comment: "Feed polling interval, used only when file notifications are unavailable.",
	},
	"behavior.presence_idle_minutes": {
		Comment: "Clear the presence when the feed has not been updated for this long (0 = never).",
	},
	"behavior.daemon_idle_minutes": {
		Comment: "Exit the daemon after this long without any presence (0 = never).",
		Alternatives: []string{
			`daemon_idle_minutes = 30`,
		},
	},

	// Update
	"update.check": {
		Comment: "Check the release manifest at startup and log when a newer version exists.",
	},
	"update.manifest_url": {},

	// Log
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
