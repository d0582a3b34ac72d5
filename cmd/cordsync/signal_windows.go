//go:build windows

package main

import (
	"os"
	"os/signal"
)

// shutdownSignals returns a channel receiving os.Interrupt. Windows has no
// SIGTERM; the runtime maps CTRL_BREAK and console close to os.Interrupt.
func shutdownSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}
