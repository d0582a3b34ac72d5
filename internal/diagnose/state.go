package diagnose

import "fmt"

// ClientState classifies why the Discord client may be unreachable.
// ClientOther is the no-issue variant.
type ClientState int

const (
	ClientOther ClientState = iota
	ClientSnap
	ClientFlatpak
	ClientBrowser
	ClientClosed
	ClientNoRPC
)

func (c ClientState) String() string {
	switch c {
	case ClientSnap:
		return "snap"
	case ClientFlatpak:
		return "flatpak"
	case ClientBrowser:
		return "browser"
	case ClientClosed:
		return "closed"
	case ClientNoRPC:
		return "no_rpc"
	default:
		return "other"
	}
}

// Message explains the state to the user. Empty means no issue.
func (c ClientState) Message(appName string) string {
	switch c {
	case ClientSnap:
		return fmt.Sprintf("Discord is installed as a Snap package. Its sandbox hides the IPC socket from %s; install the .deb or tarball build instead.", appName)
	case ClientFlatpak:
		return fmt.Sprintf("Discord is installed as a Flatpak. %s cannot reach its IPC socket unless it is exposed with `flatpak override --user --filesystem=xdg-run/discord-ipc-0 com.discordapp.Discord`.", appName)
	case ClientBrowser:
		return fmt.Sprintf("Discord appears to be open in a web browser, which does not support Rich Presence. Use the desktop app so %s can connect.", appName)
	case ClientClosed:
		return fmt.Sprintf("Discord is not running. Start the desktop app so %s can show your activity.", appName)
	case ClientNoRPC:
		return "Discord is running but not accepting Rich Presence connections. Enable \"Share your detected activities with others\" under Settings > Activity Privacy."
	default:
		return ""
	}
}

// IntegrationCount classifies how many competing Rich Presence
// integrations are installed. IntegrationsNone is the no-issue variant.
type IntegrationCount int

const (
	IntegrationsNone IntegrationCount = iota
	IntegrationsOne
	IntegrationsMultiple
)

func countToIntegrations(n int) IntegrationCount {
	switch {
	case n <= 0:
		return IntegrationsNone
	case n == 1:
		return IntegrationsOne
	default:
		return IntegrationsMultiple
	}
}

func (i IntegrationCount) String() string {
	switch i {
	case IntegrationsOne:
		return "one"
	case IntegrationsMultiple:
		return "multiple"
	default:
		return "none"
	}
}

func (i IntegrationCount) Message(appName string) string {
	switch i {
	case IntegrationsOne:
		return fmt.Sprintf("Another Discord Rich Presence extension is installed. It may overwrite the activity %s reports; consider disabling it.", appName)
	case IntegrationsMultiple:
		return fmt.Sprintf("Several Discord Rich Presence extensions are installed. They will compete with %s for the activity; disable all but one.", appName)
	default:
		return ""
	}
}

// HostState reports whether cordsync itself runs in a sandbox.
type HostState int

const (
	HostOther HostState = iota
	HostSandboxed
)

func (h HostState) String() string {
	if h == HostSandboxed {
		return "sandboxed"
	}
	return "other"
}

func (h HostState) Message(appName string) string {
	if h == HostSandboxed {
		return fmt.Sprintf("%s is running inside a Snap or Flatpak sandbox, which can hide Discord's IPC socket.", appName)
	}
	return ""
}

// ///////////////////////////////////////////////
// Report
// ///////////////////////////////////////////////

// Report is a snapshot of all three diagnoses.
type Report struct {
	Client       ClientState
	Integrations IntegrationCount
	Host         HostState
}

// Issues returns the non-empty messages in display order.
func (r Report) Issues(appName string) []string {
	var out []string
	for _, msg := range []string{
		r.Client.Message(appName),
		r.Integrations.Message(appName),
		r.Host.Message(appName),
	} {
		if msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// Healthy reports whether no probe found an issue.
func (r Report) Healthy() bool {
	return r == Report{}
}

func (r Report) String() string {
	return fmt.Sprintf("client=%s integrations=%s host=%s", r.Client, r.Integrations, r.Host)
}
