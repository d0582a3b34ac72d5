// endpoints_windows.go lists Discord named pipes and dials them through
// go-winio.

//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// Endpoints returns the named pipes Discord may listen on, in dial order.
func Endpoints() []string {
	paths := make([]string, 0, maxIPCSlots)
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return paths
}

func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

func notAvailable() error {
	return ErrIPCNotAvailable
}
