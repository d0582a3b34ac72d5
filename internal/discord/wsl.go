// When running inside WSL2, Discord runs on the Windows host and its named
// pipe is not visible as a Unix socket. A relay bridges the two:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"
//
// The relay's socket paths are appended to the candidate list; without a
// relay they simply do not exist.

//go:build linux

package discord

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

var isWSL = sync.OnceValue(func() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
})

func wslSocketPaths(getenv func(string) string) []string {
	if !isWSL() {
		return nil
	}
	var paths []string
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf("/mnt/wslg/runtime-dir/discord-ipc-%d", i))
	}
	if dir := getenv("XDG_RUNTIME_DIR"); dir != "" {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("%s/discord-ipc-%d", dir, i))
		}
	}
	return paths
}
