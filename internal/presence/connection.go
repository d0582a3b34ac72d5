package presence

import "context"

// ConnState is the lifecycle state of a [Connection].
type ConnState int32

const (
	StateCreated ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is a transport to the chat client bound to one application ID
// for its whole lifetime.
type Connection interface {
	// Connect establishes the transport and performs the handshake. On
	// success the connection reports the signed-in user through the
	// callback it was created with.
	Connect(ctx context.Context) error

	// Send publishes p. It must return once ctx is done.
	Send(ctx context.Context, p *Presence) error

	// Disconnect releases the transport. It is safe to call on a
	// connection that never connected or is already disconnected.
	Disconnect() error

	// Running reports whether the transport is still usable. It must not
	// block.
	Running() bool

	// AppID returns the application ID the connection is bound to.
	AppID() string
}

// Dialer creates an unconnected [Connection] for appID. The connection
// calls onUser after each successful handshake.
type Dialer func(appID string, onUser func(User)) Connection
