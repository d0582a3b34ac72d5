//go:build !windows

package discord

import (
	"slices"
	"testing"
)

func TestEndpointsFor(t *testing.T) {
	env := map[string]string{
		"XDG_RUNTIME_DIR": "/run/user/1000",
		"TMPDIR":          "/tmp",
	}
	paths := endpointsFor(func(k string) string { return env[k] }, 1000)

	if paths[0] != "/run/user/1000/discord-ipc-0" {
		t.Errorf("first candidate = %q", paths[0])
	}
	for _, want := range []string{
		"/tmp/discordcanary-ipc-3",
		"/run/user/1000/snap.discord/discord-ipc-0",
		"/run/user/1000/app/com.discordapp.Discord/discord-ipc-9",
	} {
		if !slices.Contains(paths, want) {
			t.Errorf("missing %q", want)
		}
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Errorf("duplicate candidate %q", p)
		}
		seen[p] = true
	}
}

func TestEndpointsFor_FallsBackToTmp(t *testing.T) {
	paths := endpointsFor(func(string) string { return "" }, 0)
	if paths[0] != "/tmp/discord-ipc-0" {
		t.Errorf("first candidate = %q", paths[0])
	}
	if !slices.Contains(paths, "/run/user/0/snap.discord-canary/discord-ipc-1") {
		t.Error("missing snap candidate")
	}
}
