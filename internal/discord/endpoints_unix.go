// endpoints_unix.go lists Discord IPC socket candidates on Unix-like systems
// (Linux, macOS, FreeBSD): runtime and temp directories, Snap and Flatpak
// sandboxes, and WSL relay locations.

//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// variants are the socket name prefixes of the stable, Canary, and PTB builds.
var variants = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// Endpoints returns every socket path Discord may listen on, in dial order.
func Endpoints() []string {
	return endpointsFor(os.Getenv, os.Getuid())
}

func endpointsFor(getenv func(string) string, uid int) []string {
	var dirs []string
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := getenv(key); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, "/tmp")

	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, dir := range dirs {
		for _, v := range variants {
			for i := range maxIPCSlots {
				add(filepath.Join(dir, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}

	runDir := "/run/user/" + strconv.Itoa(uid)
	for _, sd := range []string{"snap.discord", "snap.discord-canary", "snap.discord-ptb"} {
		for i := range maxIPCSlots {
			add(fmt.Sprintf("%s/%s/discord-ipc-%d", runDir, sd, i))
		}
	}
	for _, app := range []string{"com.discordapp.Discord", "com.discordapp.DiscordCanary", "com.discordapp.DiscordPTB"} {
		for i := range maxIPCSlots {
			add(fmt.Sprintf("%s/app/%s/discord-ipc-%d", runDir, app, i))
		}
	}

	for _, p := range wslSocketPaths(getenv) {
		add(p)
	}
	return paths
}

// dialEndpoint connects to a single socket path.
func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// notAvailable decorates ErrIPCNotAvailable with a WSL relay hint when relevant.
func notAvailable() error {
	if isWSL() {
		return fmt.Errorf("%w: running under WSL, a socat + npiperelay.exe relay is required", ErrIPCNotAvailable)
	}
	return ErrIPCNotAvailable
}
