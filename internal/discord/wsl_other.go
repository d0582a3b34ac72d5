//go:build !linux && !windows

package discord

func isWSL() bool                                 { return false }
func wslSocketPaths(func(string) string) []string { return nil }
