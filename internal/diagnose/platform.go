package diagnose

import (
	"runtime"
	"slices"
	"strings"
)

// ///////////////////////////////////////////////
// Platform
// ///////////////////////////////////////////////

// Platform selects the client-state strategy. It is resolved once at startup.
type Platform int

const (
	PlatformOther Platform = iota
	PlatformWindows
	PlatformLinux
	PlatformMacOS
)

func (p Platform) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	case PlatformMacOS:
		return "macos"
	default:
		return "other"
	}
}

// DetectPlatform maps runtime.GOOS to a Platform.
func DetectPlatform() Platform {
	return platformFor(runtime.GOOS)
}

func platformFor(goos string) Platform {
	switch goos {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformMacOS
	default:
		return PlatformOther
	}
}

// ///////////////////////////////////////////////
// Strategies
// ///////////////////////////////////////////////

// clientStrategy classifies a process snapshot for one platform.
type clientStrategy interface {
	classify(procs []Process) ClientState
}

// strategyFor returns nil for platforms without process heuristics.
func strategyFor(p Platform) clientStrategy {
	switch p {
	case PlatformWindows:
		return processStrategy{
			clients:  []string{"discord.exe", "discordcanary.exe", "discordptb.exe", "discorddevelopment.exe"},
			browsers: []string{"chrome.exe", "msedge.exe", "firefox.exe", "brave.exe", "opera.exe", "vivaldi.exe"},
		}
	case PlatformLinux:
		return processStrategy{
			clients:  []string{"discord", "discordcanary", "discordptb", "discord-canary", "discord-ptb", "discorddevelopment"},
			browsers: []string{"chrome", "chromium", "chromium-browser", "firefox", "firefox-esr", "brave", "opera", "vivaldi-bin", "msedge"},
			snap:     []string{"/snap/"},
			flatpak:  []string{"/app/", "com.discordapp."},
		}
	case PlatformMacOS:
		return processStrategy{
			clients:  []string{"discord", "discord canary", "discord ptb", "discord development"},
			browsers: []string{"google chrome", "firefox", "safari", "brave browser", "arc", "microsoft edge", "opera", "vivaldi"},
		}
	default:
		return nil
	}
}

// processStrategy matches process names case-insensitively and looks for
// sandbox markers in the executable path and command line.
type processStrategy struct {
	clients  []string
	browsers []string
	snap     []string
	flatpak  []string
}

func (s processStrategy) classify(procs []Process) ClientState {
	browserHint := false
	sawClient := false
	for _, p := range procs {
		name := strings.ToLower(p.Name)
		switch {
		case slices.Contains(s.clients, name):
			where := p.Exe + " " + p.Cmdline
			if containsAny(where, s.snap) {
				return ClientSnap
			}
			if containsAny(where, s.flatpak) {
				return ClientFlatpak
			}
			sawClient = true
		case slices.Contains(s.browsers, name):
			if strings.Contains(strings.ToLower(p.Cmdline), "discord") {
				browserHint = true
			}
		}
	}

	switch {
	case sawClient:
		return ClientNoRPC
	case browserHint:
		return ClientBrowser
	default:
		return ClientClosed
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
